package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/tenant"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// BackendOutcome records one backend's result within an IngestionResult.
type BackendOutcome struct {
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// IngestionResult reports per-backend success/failure and counts (spec
// §4.6 step 6). Partial failure is permitted: the ingest is considered
// successful for whichever backends accepted it.
type IngestionResult struct {
	DocumentID  uuid.UUID       `json:"document_id"`
	ChunkCount  int             `json:"chunk_count"`
	Vector      BackendOutcome  `json:"vector"`
	Graph       BackendOutcome  `json:"graph"`
	ESS         *BackendOutcome `json:"ess,omitempty"`
}

// Input is the raw material for one ingestion call.
type Input struct {
	TenantID string
	Source   string
	Raw      []byte
}

// Coordinator implements the Ingestion Coordinator (spec §4.6, component
// C6): normalize, chunk, embed, extract hints, and dual/triple-write.
type Coordinator struct {
	tenants      tenant.Registry
	vectors      vectorstore.Store
	graph        graphstore.Store
	essClient    *ess.Client
	essBindings  *ess.BindingCache
	embedder     collab.Embedder
	chunker      *Chunker
	embedWorkers int
	episodeTokenCeiling int
	logger       obs.Logger
}

// Option configures optional Coordinator dependencies not required by
// every deployment (ESS is disabled when essClient is nil).
type Option func(*Coordinator)

func WithESS(client *ess.Client, bindings *ess.BindingCache) Option {
	return func(c *Coordinator) {
		c.essClient = client
		c.essBindings = bindings
	}
}

func New(tenants tenant.Registry, vectors vectorstore.Store, graph graphstore.Store, embedder collab.Embedder, chunker *Chunker, embedWorkers int, logger obs.Logger, opts ...Option) *Coordinator {
	if embedWorkers <= 0 {
		embedWorkers = 4
	}
	c := &Coordinator{
		tenants:             tenants,
		vectors:             vectors,
		graph:               graph,
		embedder:            embedder,
		chunker:             chunker,
		embedWorkers:        embedWorkers,
		episodeTokenCeiling: 2000,
		logger:              logger.WithPrefix("ingestion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest implements spec §4.6 end to end.
func (c *Coordinator) Ingest(ctx context.Context, in Input, essEnabled bool, ccPairID int) (*IngestionResult, error) {
	return c.ingest(ctx, in, uuid.New(), essEnabled, ccPairID)
}

func (c *Coordinator) ingest(ctx context.Context, in Input, documentID uuid.UUID, essEnabled bool, ccPairID int) (*IngestionResult, error) {
	const op = "ingestion.Ingest"

	if _, err := c.tenants.RequireActive(ctx, in.TenantID); err != nil {
		return nil, err
	}

	title, text := Normalize(in.Source, in.Raw)
	doc := &models.Document{ID: documentID, TenantID: in.TenantID, Title: title, Source: in.Source, Content: text}

	chunks := c.chunker.Chunk(in.TenantID, doc.ID, text)
	if err := c.embedChunks(ctx, chunks); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}

	hints := ExtractHints(text)
	hintMeta := ToMetadata(hints)
	for _, chunk := range chunks {
		chunk.Metadata = hintMeta
	}

	result := &IngestionResult{DocumentID: doc.ID, ChunkCount: len(chunks)}

	if err := c.writeVector(ctx, in.TenantID, doc, chunks); err != nil {
		result.Vector = BackendOutcome{Succeeded: false, Error: err.Error()}
	} else {
		result.Vector = BackendOutcome{Succeeded: true}
	}

	if err := c.writeGraph(ctx, in.TenantID, doc, chunks); err != nil {
		result.Graph = BackendOutcome{Succeeded: false, Error: err.Error()}
	} else {
		result.Graph = BackendOutcome{Succeeded: true}
	}

	if essEnabled && c.essClient != nil {
		outcome := c.writeESS(ctx, in.TenantID, doc, chunks, ccPairID)
		result.ESS = &outcome
	}

	return result, nil
}

// Reingest implements idempotent re-ingest: delete then insert chunks for
// documentID inside the dual-write, matching the teacher's delete+insert
// idiom in pkg/repository/vector/repository.go's StoreContextEmbedding.
func (c *Coordinator) Reingest(ctx context.Context, in Input, documentID uuid.UUID, essEnabled bool, ccPairID int) (*IngestionResult, error) {
	if err := c.vectors.DeleteDocumentChunks(ctx, in.TenantID, documentID); err != nil {
		return nil, err
	}
	return c.ingest(ctx, in, documentID, essEnabled, ccPairID)
}

// DeleteDocument removes a document's chunks from the vector store. Graph
// and ESS side-effects from the original ingest are left in place — spec
// §4.6 names no cross-backend delete propagation operation.
func (c *Coordinator) DeleteDocument(ctx context.Context, tenantID string, documentID uuid.UUID) error {
	if _, err := c.tenants.RequireActive(ctx, tenantID); err != nil {
		return err
	}
	return c.vectors.DeleteDocumentChunks(ctx, tenantID, documentID)
}

// embedChunks embeds in batches using up to embedWorkers concurrent
// goroutines via errgroup, and rejects any vector whose dimension does
// not match the embedder's configured dimension (spec §4.6 step 3).
func (c *Coordinator) embedChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batchSize := 16
	type batch struct {
		start, end int
	}
	var batches []batch
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, batch{start: i, end: end})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.embedWorkers)
	dim := c.embedder.Dimension()

	for _, b := range batches {
		b := b
		g.Go(func() error {
			texts := make([]string, 0, b.end-b.start)
			for _, ch := range chunks[b.start:b.end] {
				texts = append(texts, ch.Content)
			}
			vecs, err := c.embedder.Embed(ctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("ingestion: embedder returned %d vectors for %d inputs", len(vecs), len(texts))
			}
			for i, vec := range vecs {
				if len(vec) != dim {
					return fmt.Errorf("ingestion: embedding dimension %d != configured %d", len(vec), dim)
				}
				chunks[b.start+i].Embedding = vec
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) writeVector(ctx context.Context, tenantID string, doc *models.Document, chunks []*models.Chunk) error {
	return c.vectors.InsertChunks(ctx, tenantID, chunks)
}

// writeGraph sends one Episode per chunk, or one per document when the
// combined chunk token count would exceed the extractor's input limit
// (spec §4.6 step 5), truncating at a safe boundary if still too large.
func (c *Coordinator) writeGraph(ctx context.Context, tenantID string, doc *models.Document, chunks []*models.Chunk) error {
	totalTokens := 0
	for _, ch := range chunks {
		totalTokens += ch.TokenCount
	}

	if totalTokens > c.episodeTokenCeiling {
		ep := models.Episode{TenantID: tenantID, Name: doc.Title, Content: truncate(doc.Content, c.episodeTokenCeiling*4), SourceDescription: doc.Source}
		_, err := c.graph.AddEpisode(ctx, ep)
		return err
	}

	for _, ch := range chunks {
		ep := models.Episode{
			TenantID:          tenantID,
			Name:              fmt.Sprintf("%s#%d", doc.Title, ch.ChunkIndex),
			Content:           truncate(ch.Content, c.episodeTokenCeiling*4),
			SourceDescription: doc.Source,
		}
		if _, err := c.graph.AddEpisode(ctx, ep); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) writeESS(ctx context.Context, tenantID string, doc *models.Document, chunks []*models.Chunk, ccPairID int) BackendOutcome {
	docSetID, err := c.essClient.EnsureDocumentSet(ctx, c.essBindings, tenantID, ccPairID)
	if err != nil {
		return BackendOutcome{Succeeded: false, Error: err.Error()}
	}
	_ = docSetID

	sections := make([]ess.Section, 0, len(chunks))
	for _, ch := range chunks {
		sections = append(sections, ess.Section{Text: ch.Content})
	}
	if _, err := c.essClient.Ingest(ctx, tenantID, doc, sections); err != nil {
		return BackendOutcome{Succeeded: false, Error: err.Error()}
	}
	return BackendOutcome{Succeeded: true}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
