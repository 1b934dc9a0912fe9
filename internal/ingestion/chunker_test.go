package ingestion

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestChunker_DenseZeroBasedIndex(t *testing.T) {
	c := NewChunker(ChunkParams{Size: 5, Overlap: 1, Max: 100})
	content := strings.Repeat("word ", 23)
	chunks := c.Chunk("acme", uuid.New(), content)

	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		require.Equal(t, i, ch.ChunkIndex)
		require.Equal(t, "acme", ch.TenantID)
	}
}

func TestChunker_EmptyContent(t *testing.T) {
	c := NewChunker(DefaultChunkParams())
	require.Empty(t, c.Chunk("acme", uuid.New(), ""))
}

func TestChunker_RespectsMax(t *testing.T) {
	c := NewChunker(ChunkParams{Size: 2, Overlap: 0, Max: 3})
	content := strings.Repeat("word ", 100)
	chunks := c.Chunk("acme", uuid.New(), content)
	require.LessOrEqual(t, len(chunks), 3)
}
