package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/tenant"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

type fakeRegistry struct{ tenant *models.Tenant }

func (f *fakeRegistry) Create(context.Context, *models.Tenant) (*models.Tenant, error) { return nil, nil }
func (f *fakeRegistry) Get(context.Context, string) (*models.Tenant, error)             { return f.tenant, nil }
func (f *fakeRegistry) List(context.Context, models.TenantStatus) ([]*models.Tenant, error) {
	return nil, nil
}
func (f *fakeRegistry) UpdateStatus(context.Context, string, models.TenantStatus) error { return nil }
func (f *fakeRegistry) Delete(context.Context, string, bool) error                      { return nil }
func (f *fakeRegistry) Stats(context.Context, string) (*tenant.Stats, error)            { return nil, nil }
func (f *fakeRegistry) RequireActive(context.Context, string) (*models.Tenant, error)   { return f.tenant, nil }

type fakeVectors struct{ hits []vectorstore.Hit }

func (f *fakeVectors) InsertChunks(context.Context, string, []*models.Chunk) error { return nil }
func (f *fakeVectors) VectorSearch(context.Context, string, []float32, int, float64) ([]vectorstore.Hit, error) {
	return f.hits, nil
}
func (f *fakeVectors) HybridSearch(context.Context, string, []float32, string, int, float64, float64) ([]vectorstore.Hit, error) {
	return f.hits, nil
}
func (f *fakeVectors) DeleteDocumentChunks(context.Context, string, uuid.UUID) error { return nil }

type fakeGraph struct{ results []graphstore.Result }

func (f *fakeGraph) AddEpisode(context.Context, models.Episode) (*models.EpisodeRef, error) {
	return nil, nil
}
func (f *fakeGraph) Search(context.Context, string, string, graphstore.SearchKind, int) ([]graphstore.Result, error) {
	return f.results, nil
}
func (f *fakeGraph) EntityRelationships(context.Context, string, string, graphstore.Direction, []string, int) ([]graphstore.Edge, error) {
	return nil, nil
}
func (f *fakeGraph) EntityTimeline(context.Context, string, string, int) ([]graphstore.FactEvent, error) {
	return nil, nil
}
func (f *fakeGraph) ShortestPath(context.Context, string, string, string, int) ([]graphstore.Path, error) {
	return nil, nil
}
func (f *fakeGraph) Stats(context.Context, string) (*graphstore.Stats, error) { return nil, nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}
func (fakeEmbedder) Dimension() int { return 2 }

// TestQuery_ESSFailureFallsBackToVectorAndGraph reproduces spec §8 scenario
// 2 end to end: ESS returns 503 on every attempt, vector and graph both
// contribute, and the synthesized answer's fallback_chain carries the exact
// literal tokens the scenario names.
func TestQuery_ESSFailureFallsBackToVectorAndGraph(t *testing.T) {
	essSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer essSrv.Close()

	essClient := ess.NewClient(ess.Config{BaseURL: essSrv.URL, APIKey: "k", MaxRetries: 1}, obs.Noop())

	vectors := &fakeVectors{hits: []vectorstore.Hit{
		{ChunkID: uuid.New(), Content: "the sky is blue", Score: 0.9, DocumentTitle: "Doc A"},
	}}
	graph := &fakeGraph{results: []graphstore.Result{
		{Fact: &models.Fact{ID: "f1", Content: "sky RELATED_TO atmosphere"}, Score: 0.8},
	}}
	registry := &fakeRegistry{tenant: &models.Tenant{ID: "acme", Status: models.TenantActive}}

	o := New(registry, vectors, graph, essClient, fakeEmbedder{}, obs.Noop())

	flags := DefaultFlags()
	flags.UseESS = true
	flags.ESSMaxRetries = 1

	answer, err := o.Query(context.Background(), "acme", "what color is the sky?", flags)
	require.NoError(t, err)
	require.Equal(t, ConfidenceMedium, answer.Confidence)
	require.Contains(t, answer.FallbackChain, "ess_attempted")
	require.Contains(t, answer.FallbackChain, "ess_failed")
	require.Contains(t, answer.FallbackChain, "vector_primary")
	require.Contains(t, answer.FallbackChain, "graph_synthesis_added")
}
