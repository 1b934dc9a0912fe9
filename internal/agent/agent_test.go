package agent

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeVectorStore struct {
	hits []vectorstore.Hit
}

func (f *fakeVectorStore) InsertChunks(ctx context.Context, tenantID string, chunks []*models.Chunk) error {
	return nil
}
func (f *fakeVectorStore) VectorSearch(ctx context.Context, tenantID string, queryVec []float32, topK int, threshold float64) ([]vectorstore.Hit, error) {
	return f.hits, nil
}
func (f *fakeVectorStore) HybridSearch(ctx context.Context, tenantID string, queryVec []float32, queryText string, topK int, threshold, vectorWeight float64) ([]vectorstore.Hit, error) {
	return f.hits, nil
}
func (f *fakeVectorStore) DeleteDocumentChunks(ctx context.Context, tenantID string, documentID uuid.UUID) error {
	return nil
}

type fakeGraphStore struct {
	results []graphstore.Result
}

func (f *fakeGraphStore) AddEpisode(ctx context.Context, ep models.Episode) (*models.EpisodeRef, error) {
	return &models.EpisodeRef{}, nil
}
func (f *fakeGraphStore) Search(ctx context.Context, tenantID, query string, kind graphstore.SearchKind, limit int) ([]graphstore.Result, error) {
	return f.results, nil
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

// scriptedLLM replays a fixed sequence of ChatResponses, one per call,
// so the loop's stop condition and message-accumulation can be tested
// deterministically without a real model.
type scriptedLLM struct {
	responses []collab.ChatResponse
	calls     int
	seen      [][]collab.ChatMessage
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []collab.ChatMessage, tools []collab.ToolSpec) (collab.ChatResponse, error) {
	s.seen = append(s.seen, messages)
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func newTestAuth() *authgate.AuthContext {
	return &authgate.AuthContext{TenantID: "acme", UserID: "u1", Permissions: []string{"admin"}}
}

func TestRegistry_SpecsAndInvoke(t *testing.T) {
	reg := NewRegistry(BuiltinTools()...)
	specs := reg.Specs()
	require.Len(t, specs, 8)

	names := reg.Names()
	require.Contains(t, names, "vector_search")
	require.Contains(t, names, "onyx_answer_with_quote")

	_, ok := reg.Get("vector_search")
	require.True(t, ok)
	_, ok = reg.Get("nonexistent")
	require.False(t, ok)
}

func TestRegistry_InvokeUnknownToolReturnsNotFound(t *testing.T) {
	reg := NewRegistry(BuiltinTools()...)
	_, err := reg.Invoke(context.Background(), newTestAuth(), &Services{}, collab.ToolCall{Name: "nope"})
	require.Error(t, err)
}

func TestRuntime_StopsOnTerminalTextMessage(t *testing.T) {
	reg := NewRegistry(BuiltinTools()...)
	llm := &scriptedLLM{responses: []collab.ChatResponse{{Text: "final answer"}}}
	services := &Services{
		Vector:   &fakeVectorStore{},
		Graph:    &fakeGraphStore{},
		Embedder: &fakeEmbedder{dim: 4},
		LLM:      llm,
	}
	rt := New(reg, services, obs.Noop())

	result, err := rt.Run(context.Background(), newTestAuth(), "system prompt", "hello")
	require.NoError(t, err)
	require.Equal(t, "final answer", result.Text)
	require.Equal(t, 1, llm.calls)
	require.Len(t, result.Steps, 1)
}

func TestRuntime_ExecutesToolCallThenStops(t *testing.T) {
	reg := NewRegistry(BuiltinTools()...)
	llm := &scriptedLLM{responses: []collab.ChatResponse{
		{ToolCalls: []collab.ToolCall{{ID: "1", Name: "vector_search", Arguments: map[string]any{"query": "acme contract"}}}},
		{Text: "answer using tool results"},
	}}
	services := &Services{
		Vector:   &fakeVectorStore{hits: []vectorstore.Hit{{ChunkID: uuid.New(), Content: "a chunk", Score: 0.9}}},
		Graph:    &fakeGraphStore{},
		Embedder: &fakeEmbedder{dim: 4},
		LLM:      llm,
	}
	rt := New(reg, services, obs.Noop())

	result, err := rt.Run(context.Background(), newTestAuth(), "system prompt", "find the acme contract")
	require.NoError(t, err)
	require.Equal(t, "answer using tool results", result.Text)
	require.Equal(t, 2, llm.calls)

	var sawToolStep bool
	for _, s := range result.Steps {
		if s.ToolName == "vector_search" {
			sawToolStep = true
		}
	}
	require.True(t, sawToolStep)
}

func TestRuntime_StopsAtStepBudget(t *testing.T) {
	reg := NewRegistry(BuiltinTools()...)
	loopingCall := collab.ChatResponse{ToolCalls: []collab.ToolCall{{ID: "1", Name: "vector_search", Arguments: map[string]any{"query": "x"}}}}
	llm := &scriptedLLM{responses: []collab.ChatResponse{loopingCall, loopingCall, loopingCall}}
	services := &Services{
		Vector:   &fakeVectorStore{},
		Graph:    &fakeGraphStore{},
		Embedder: &fakeEmbedder{dim: 4},
		LLM:      llm,
	}
	rt := New(reg, services, obs.Noop(), WithStepBudget(3))

	result, err := rt.Run(context.Background(), newTestAuth(), "system", "loop forever")
	require.NoError(t, err)
	require.Equal(t, 3, llm.calls)
	require.Contains(t, result.Text, "allotted steps")
}

func TestRuntime_ToolErrorIsSurfacedAsObservation(t *testing.T) {
	reg := NewRegistry(BuiltinTools()...)
	llm := &scriptedLLM{responses: []collab.ChatResponse{
		{ToolCalls: []collab.ToolCall{{ID: "1", Name: "vector_search", Arguments: map[string]any{}}}},
		{Text: "handled the error"},
	}}
	services := &Services{
		Vector:   &fakeVectorStore{},
		Graph:    &fakeGraphStore{},
		Embedder: &fakeEmbedder{dim: 4},
		LLM:      llm,
	}
	rt := New(reg, services, obs.Noop())

	result, err := rt.Run(context.Background(), newTestAuth(), "system", "missing query arg")
	require.NoError(t, err)
	require.Equal(t, "handled the error", result.Text)

	var sawErr bool
	for _, s := range result.Steps {
		if s.ToolError != "" {
			sawErr = true
		}
	}
	require.True(t, sawErr)
}
