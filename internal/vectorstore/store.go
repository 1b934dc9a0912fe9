// Package vectorstore implements the Vector Store Adapter (spec §4.3,
// component C3): tenant-filtered k-NN and hybrid lexical/vector search
// backed by Postgres + pgvector.
package vectorstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// Hit is one retrieval result, shaped per spec §4.3.
type Hit struct {
	ChunkID        uuid.UUID      `db:"chunk_id" json:"chunk_id"`
	DocumentID     uuid.UUID      `db:"document_id" json:"document_id"`
	Content        string         `db:"content" json:"content"`
	Score          float64        `db:"score" json:"score"`
	DocumentTitle  string         `db:"document_title" json:"document_title"`
	DocumentSource string         `db:"document_source" json:"document_source"`
	TenantID       string         `db:"tenant_id" json:"-"`
	Metadata       map[string]any `db:"-" json:"metadata,omitempty"`
}

// Store is the Vector Store Adapter contract.
type Store interface {
	InsertChunks(ctx context.Context, tenantID string, chunks []*models.Chunk) error
	VectorSearch(ctx context.Context, tenantID string, queryVec []float32, topK int, threshold float64) ([]Hit, error)
	HybridSearch(ctx context.Context, tenantID string, queryVec []float32, queryText string, topK int, threshold, vectorWeight float64) ([]Hit, error)
	DeleteDocumentChunks(ctx context.Context, tenantID string, documentID uuid.UUID) error
}

type store struct {
	db     *sqlx.DB
	logger obs.Logger
}

// New constructs a pgx/sqlx-backed Store.
func New(db *sqlx.DB, logger obs.Logger) Store {
	return &store{db: db, logger: logger.WithPrefix("vectorstore")}
}

// InsertChunks is batched and transactional per document, and rejects
// mixed-tenant batches outright — the caller made an isolation mistake
// upstream and this adapter refuses to paper over it (spec §4.3).
func (s *store) InsertChunks(ctx context.Context, tenantID string, chunks []*models.Chunk) error {
	const op = "vectorstore.InsertChunks"
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.TenantID != tenantID {
			s.logger.Critical("mixed-tenant chunk batch rejected", map[string]any{
				"caller_tenant": tenantID, "chunk_tenant": c.TenantID, "chunk_id": c.ID,
			})
			return apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID, "chunk_tenant": c.TenantID})
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.BackendTransient, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO chunks (id, tenant_id, document_id, content, chunk_index, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, c := range chunks {
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.ExecContext(ctx, q, c.ID, c.TenantID, c.DocumentID, c.Content, c.ChunkIndex, c.TokenCount, vec, c.CreatedAt); err != nil {
			return apperr.Wrap(apperr.BackendTransient, op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return nil
}

// VectorSearch returns at most topK hits with cosine similarity >=
// threshold, every one asserted to belong to tenantID (spec §4.3).
func (s *store) VectorSearch(ctx context.Context, tenantID string, queryVec []float32, topK int, threshold float64) ([]Hit, error) {
	const op = "vectorstore.VectorSearch"
	const q = `
		SELECT c.id AS chunk_id, c.document_id, c.content, c.tenant_id,
		       1 - (c.embedding <=> $1) AS score,
		       d.title AS document_title, d.source AS document_source
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.tenant_id = $2 AND 1 - (c.embedding <=> $1) >= $3
		ORDER BY c.embedding <=> $1
		LIMIT $4`

	vec := pgvector.NewVector(queryVec)
	var hits []Hit
	if err := s.db.SelectContext(ctx, &hits, q, vec, tenantID, threshold, topK); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return s.assertTenant(op, tenantID, hits)
}

// HybridSearch combines vector cosine similarity with Postgres full-text
// ts_rank lexical scoring, per the weighted formula in spec §4.3.
func (s *store) HybridSearch(ctx context.Context, tenantID string, queryVec []float32, queryText string, topK int, threshold, vectorWeight float64) ([]Hit, error) {
	const op = "vectorstore.HybridSearch"
	const q = `
		SELECT chunk_id, document_id, content, tenant_id, score, document_title, document_source FROM (
			SELECT c.id AS chunk_id, c.document_id, c.content, c.tenant_id,
			       1 - (c.embedding <=> $1) AS vec_sim,
			       ts_rank(to_tsvector('english', c.content), plainto_tsquery('english', $2)) AS lex_sim,
			       d.title AS document_title, d.source AS document_source,
			       ($5 * (1 - (c.embedding <=> $1))) + ((1 - $5) * ts_rank(to_tsvector('english', c.content), plainto_tsquery('english', $2))) AS score
			FROM chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE c.tenant_id = $3
		) scored
		WHERE vec_sim >= $4
		ORDER BY score DESC
		LIMIT $6`

	vec := pgvector.NewVector(queryVec)
	var hits []Hit
	if err := s.db.SelectContext(ctx, &hits, q, vec, queryText, tenantID, threshold, vectorWeight, topK); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return s.assertTenant(op, tenantID, hits)
}

func (s *store) DeleteDocumentChunks(ctx context.Context, tenantID string, documentID uuid.UUID) error {
	const op = "vectorstore.DeleteDocumentChunks"
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE tenant_id = $1 AND document_id = $2`, tenantID, documentID)
	if err != nil {
		return apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return nil
}

// assertTenant is the fatal isolation boundary of spec §4.3: every row this
// adapter returns must carry the caller's tenant_id. The query's own WHERE
// clause already enforces this; this is the defense-in-depth recheck the
// spec requires before any row leaves the adapter — a mismatch here means
// the query itself is broken, so it panics into a recovered boundary
// instead of silently leaking cross-tenant data.
func (s *store) assertTenant(op, tenantID string, hits []Hit) (result []Hit, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Critical("isolation violation recovered at vector store boundary", map[string]any{"op": op, "panic": r})
			result, err = nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"recovered": r})
		}
	}()
	for i := range hits {
		if hits[i].TenantID != tenantID {
			panic(apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID, "row_tenant": hits[i].TenantID}))
		}
		hits[i].TenantID = ""
		if hits[i].Metadata == nil {
			hits[i].Metadata = map[string]any{}
		}
	}
	return hits, nil
}
