package orchestrator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

func TestSynthesize_NoResults(t *testing.T) {
	answer := synthesize(&fanOutResults{})
	require.Equal(t, "No results were found for this query.", answer.Text)
	require.Equal(t, ConfidenceNone, answer.Confidence)
	require.Empty(t, answer.Citations)
}

func TestSynthesize_ESSOnly(t *testing.T) {
	r := &fanOutResults{
		essResult: &ess.SearchResult{Success: true, Answer: "The answer is 42.", SourceDocs: []ess.SourceDoc{{DocumentID: "d1", Link: "doc.pdf", Score: 0.9}}},
	}
	answer := synthesize(r)
	require.Equal(t, "The answer is 42.", answer.Text)
	require.Equal(t, ConfidenceHigh, answer.Confidence)
	require.Len(t, answer.Citations, 1)
	require.Equal(t, "ess", answer.Citations[0].Kind)
}

func TestSynthesize_ESSWithVectorAndGraphIsVeryHigh(t *testing.T) {
	chunkID := uuid.New()
	r := &fanOutResults{
		essResult: &ess.SearchResult{Success: true, Answer: "Primary answer."},
		vectorHits: []vectorstore.Hit{
			{ChunkID: chunkID, Content: "supporting evidence", Score: 0.9, DocumentTitle: "Doc A"},
		},
		graphHits: []graphstore.Result{
			{Fact: &models.Fact{ID: "f1", Content: "Acme depends on Globex"}, Score: 0.8},
		},
	}
	answer := synthesize(r)
	require.Contains(t, answer.Text, "Primary answer.")
	require.Contains(t, answer.Text, "Relationship Context")
	require.Contains(t, answer.Text, "Evidence")
	require.Equal(t, ConfidenceVeryHigh, answer.Confidence)
}

func TestSynthesize_VectorOnlyIsMedium(t *testing.T) {
	chunkID := uuid.New()
	r := &fanOutResults{
		vectorHits: []vectorstore.Hit{
			{ChunkID: chunkID, Content: "the top chunk content", Score: 0.95, DocumentTitle: "Doc A"},
		},
	}
	answer := synthesize(r)
	require.Equal(t, "the top chunk content", answer.Text)
	require.Equal(t, ConfidenceMedium, answer.Confidence)
	require.Len(t, answer.Citations, 1)
}

func TestSynthesize_GraphOnlyIsLow(t *testing.T) {
	r := &fanOutResults{
		graphHits: []graphstore.Result{{Fact: &models.Fact{ID: "f1", Content: "Acme depends on Globex"}, Score: 0.5}},
	}
	answer := synthesize(r)
	require.Contains(t, answer.Text, "Knowledge graph results")
	require.Equal(t, ConfidenceLow, answer.Confidence)
}

func TestSynthesize_VectorTruncatedAt500Chars(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	r := &fanOutResults{
		vectorHits: []vectorstore.Hit{{ChunkID: uuid.New(), Content: string(long), Score: 0.9, DocumentTitle: "Doc A"}},
	}
	answer := synthesize(r)
	// 500 bytes of content plus the 3-byte UTF-8 ellipsis.
	require.LessOrEqual(t, len(answer.Text), 503)
}

// TestSynthesize_ESSFailureFallsBackToVectorAndGraph exercises spec §8
// scenario 2: ESS attempted and failed, vector supplies the primary text,
// graph augments it — fallback_chain must carry the exact literal tokens
// the scenario names.
func TestSynthesize_ESSFailureFallsBackToVectorAndGraph(t *testing.T) {
	r := &fanOutResults{
		fallbackChain: []string{"ess_attempted", "ess_failed"},
		vectorHits: []vectorstore.Hit{
			{ChunkID: uuid.New(), Content: "the sky is blue", Score: 0.9, DocumentTitle: "Doc A"},
		},
		graphHits: []graphstore.Result{
			{Fact: &models.Fact{ID: "f1", Content: "sky RELATED_TO atmosphere"}, Score: 0.8},
		},
	}
	answer := synthesize(r)
	require.Equal(t, ConfidenceMedium, answer.Confidence)
	require.Equal(t, []string{"ess_attempted", "ess_failed", "vector_primary", "graph_synthesis_added"}, answer.FallbackChain)
}

func TestSynthesize_NeverCitesUnsupportedContent(t *testing.T) {
	r := &fanOutResults{
		essResult: &ess.SearchResult{Success: true, Answer: "answer with no docs"},
	}
	answer := synthesize(r)
	require.Empty(t, answer.Citations)
}
