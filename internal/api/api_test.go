package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/agent"
	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/ingestion"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/tenant"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTenantRegistry struct {
	tenants map[string]*models.Tenant
}

func newFakeTenantRegistry() *fakeTenantRegistry {
	return &fakeTenantRegistry{tenants: map[string]*models.Tenant{
		"acme": {ID: "acme", Name: "Acme", Status: models.TenantActive},
	}}
}

func (f *fakeTenantRegistry) Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	if t.Status == "" {
		t.Status = models.TenantActive
	}
	f.tenants[t.ID] = t
	return t, nil
}
func (f *fakeTenantRegistry) Get(ctx context.Context, id string) (*models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "fakeTenantRegistry.Get", nil, nil)
	}
	return t, nil
}
func (f *fakeTenantRegistry) List(ctx context.Context, status models.TenantStatus) ([]*models.Tenant, error) {
	var out []*models.Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeTenantRegistry) UpdateStatus(ctx context.Context, id string, status models.TenantStatus) error {
	t, ok := f.tenants[id]
	if !ok {
		return apperr.New(apperr.NotFound, "fakeTenantRegistry.UpdateStatus", nil, nil)
	}
	t.Status = status
	return nil
}
func (f *fakeTenantRegistry) Delete(ctx context.Context, id string, force bool) error {
	delete(f.tenants, id)
	return nil
}
func (f *fakeTenantRegistry) Stats(ctx context.Context, id string) (*tenant.Stats, error) {
	return &tenant.Stats{Documents: 3}, nil
}
func (f *fakeTenantRegistry) RequireActive(ctx context.Context, id string) (*models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok || t.Status != models.TenantActive {
		return nil, apperr.New(apperr.TenantUnavailable, "fakeTenantRegistry.RequireActive", nil, nil)
	}
	return t, nil
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeVectorStore struct{}

func (f *fakeVectorStore) InsertChunks(ctx context.Context, tenantID string, chunks []*models.Chunk) error {
	return nil
}
func (f *fakeVectorStore) VectorSearch(ctx context.Context, tenantID string, queryVec []float32, topK int, threshold float64) ([]vectorstore.Hit, error) {
	return nil, nil
}
func (f *fakeVectorStore) HybridSearch(ctx context.Context, tenantID string, queryVec []float32, queryText string, topK int, threshold, vectorWeight float64) ([]vectorstore.Hit, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeleteDocumentChunks(ctx context.Context, tenantID string, documentID uuid.UUID) error {
	return nil
}

type fakeGraphStore struct{}

func (f *fakeGraphStore) AddEpisode(ctx context.Context, ep models.Episode) (*models.EpisodeRef, error) {
	return &models.EpisodeRef{}, nil
}
func (f *fakeGraphStore) Search(ctx context.Context, tenantID, query string, kind graphstore.SearchKind, limit int) ([]graphstore.Result, error) {
	return nil, nil
}
func (f *fakeGraphStore) EntityRelationships(ctx context.Context, tenantID, entityID string, dir graphstore.Direction, types []string, limit int) ([]graphstore.Edge, error) {
	return nil, nil
}
func (f *fakeGraphStore) EntityTimeline(ctx context.Context, tenantID, entityID string, limit int) ([]graphstore.FactEvent, error) {
	return nil, nil
}
func (f *fakeGraphStore) ShortestPath(ctx context.Context, tenantID, sourceName, targetName string, maxDepth int) ([]graphstore.Path, error) {
	return nil, nil
}
func (f *fakeGraphStore) Stats(ctx context.Context, tenantID string) (*graphstore.Stats, error) {
	return &graphstore.Stats{}, nil
}

type scriptedLLM struct {
	resp collab.ChatResponse
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []collab.ChatMessage, tools []collab.ToolSpec) (collab.ChatResponse, error) {
	return s.resp, nil
}

func testDeps(t *testing.T) (Deps, *fakeTenantRegistry) {
	logger := obs.Noop()
	tenants := newFakeTenantRegistry()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	tokens := authgate.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	sessions := authgate.NewSessionStore(rdb, logger, 24*time.Hour)
	gate := authgate.NewGate(tokens, sessions, nil, 24*time.Hour, logger)

	coord := ingestion.New(tenants, &fakeVectorStore{}, &fakeGraphStore{}, &fakeEmbedder{dim: 4}, ingestion.NewChunker(ingestion.DefaultChunkParams()), 2, logger)

	reg := agent.NewRegistry(agent.BuiltinTools()...)
	services := &agent.Services{
		Vector:   &fakeVectorStore{},
		Graph:    &fakeGraphStore{},
		Embedder: &fakeEmbedder{dim: 4},
		LLM:      &scriptedLLM{resp: collab.ChatResponse{Text: "hello from the assistant"}},
	}
	runtime := agent.New(reg, services, logger)

	return Deps{
		Gate:        gate,
		Tenants:     tenants,
		Coordinator: coord,
		Agent:       runtime,
		Logger:      logger,
	}, tenants
}

func bearerFor(t *testing.T, deps Deps, tenantID string, permissions []string) string {
	tokens := authgate.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	_ = deps
	tok, err := tokens.IssueAccessToken(tenantID, "user-1", permissions, "")
	require.NoError(t, err)
	return tok
}

func TestHealth(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
}

func TestChat_RequiresAuth(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"hi"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 401, w.Code)
}

func TestChat_Success(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	tok := bearerFor(t, deps, "acme", []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"what is acme?"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	var result agent.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, "hello from the assistant", result.Text)
}

func TestDocuments_ForbiddenWithoutPermission(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	tok := bearerFor(t, deps, "acme", []string{"chat:read"})

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString(`{"source":"readme.md"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 403, w.Code)
}

func TestDocuments_IngestSuccess(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	tok := bearerFor(t, deps, "acme", []string{"documents:write"})

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString(`{"source":"readme.md"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 202, w.Code)
}

func TestTenants_GetAndStats(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	tok := bearerFor(t, deps, "acme", []string{"tenants:read"})

	req := httptest.NewRequest(http.MethodGet, "/tenants/acme", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/tenants/acme/stats", nil)
	req2.Header.Set("Authorization", "Bearer "+tok)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, 200, w2.Code)
}

func TestAuthToken_IssueAndRefresh(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	body, _ := json.Marshal(issueTokenRequest{TenantID: "acme", UserID: "user-1", Permissions: []string{"documents:read"}})
	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var tok tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)

	// The minted access token works against a protected route.
	req2 := httptest.NewRequest(http.MethodGet, "/tenants/acme", nil)
	req2.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, 403, w2.Code) // documents:read lacks tenants:read

	refreshBody, _ := json.Marshal(refreshTokenRequest{RefreshToken: tok.RefreshToken, Permissions: []string{"documents:read"}})
	req3 := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBuffer(refreshBody))
	req3.Header.Set("Content-Type", "application/json")
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req3)
	require.Equal(t, 200, w3.Code)

	// Reusing the same refresh token must fail (rotation).
	w4 := httptest.NewRecorder()
	req4 := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBuffer(refreshBody))
	req4.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w4, req4)
	require.Equal(t, 401, w4.Code)
}

func TestTenants_CreateRequiresAdmin(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	tok := bearerFor(t, deps, "acme", []string{"tenants:read"})

	body, _ := json.Marshal(createTenantRequest{ID: "globex", Name: "Globex"})
	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 403, w.Code)
}
