// Package ingestion implements the Ingestion Coordinator (spec §4.6,
// component C6): normalize a source into text, chunk it, embed in
// batches, extract rule-based entity hints, and dual/triple-write to the
// vector, graph, and optional ESS backends.
package ingestion

import (
	"strings"

	"github.com/google/uuid"

	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// ChunkParams configures size/overlap/max for the fixed-size chunker,
// grounded on the teacher's apps/rag-loader/internal/processor/chunker.go
// FixedSizeChunker (word-count windows, not true token counts).
type ChunkParams struct {
	Size    int // approximate words per chunk
	Overlap int // approximate overlapping words between consecutive chunks
	Max     int // hard cap on number of chunks produced from one document
}

func DefaultChunkParams() ChunkParams {
	return ChunkParams{Size: 400, Overlap: 50, Max: 500}
}

// Chunker splits normalized document text into ordered, tenant-scoped
// chunks. chunk_index is dense and 0-based within the document (spec §3).
type Chunker struct {
	params ChunkParams
}

func NewChunker(params ChunkParams) *Chunker {
	if params.Size <= 0 {
		params.Size = 400
	}
	if params.Max <= 0 {
		params.Max = 500
	}
	return &Chunker{params: params}
}

func (c *Chunker) Chunk(tenantID string, documentID uuid.UUID, content string) []*models.Chunk {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	step := c.params.Size - c.params.Overlap
	if step <= 0 {
		step = c.params.Size
	}

	var chunks []*models.Chunk
	idx := 0
	for i := 0; i < len(words) && len(chunks) < c.params.Max; i += step {
		end := i + c.params.Size
		if end > len(words) {
			end = len(words)
		}
		text := strings.Join(words[i:end], " ")
		chunks = append(chunks, &models.Chunk{
			ID:         uuid.New(),
			TenantID:   tenantID,
			DocumentID: documentID,
			Content:    text,
			ChunkIndex: idx,
			TokenCount: end - i,
		})
		idx++
		if end == len(words) {
			break
		}
	}
	return chunks
}
