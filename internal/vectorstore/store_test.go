package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

func newTestStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return New(sqlxDB, obs.Noop()), mock
}

func TestInsertChunks_RejectsMixedTenant(t *testing.T) {
	s, _ := newTestStore(t)
	chunks := []*models.Chunk{
		{ID: uuid.New(), TenantID: "acme", DocumentID: uuid.New()},
		{ID: uuid.New(), TenantID: "other", DocumentID: uuid.New()},
	}
	err := s.InsertChunks(context.Background(), "acme", chunks)
	require.Error(t, err)
	require.Equal(t, apperr.IsolationViolation, apperr.KindOf(err))
}

func TestInsertChunks_Success(t *testing.T) {
	s, mock := newTestStore(t)
	docID := uuid.New()
	chunks := []*models.Chunk{
		{ID: uuid.New(), TenantID: "acme", DocumentID: docID, Content: "hello", ChunkIndex: 0, Embedding: []float32{0.1, 0.2}, CreatedAt: time.Now()},
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chunks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InsertChunks(context.Background(), "acme", chunks)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertChunks_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.InsertChunks(context.Background(), "acme", nil))
}

func TestVectorSearch_IsolationViolationOnMismatch(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"chunk_id", "document_id", "content", "tenant_id", "score", "document_title", "document_source"}).
		AddRow(uuid.New(), uuid.New(), "text", "other-tenant", 0.9, "Title", "Source")
	mock.ExpectQuery("SELECT c.id AS chunk_id").WillReturnRows(rows)

	_, err := s.VectorSearch(context.Background(), "acme", []float32{0.1}, 5, 0.5)
	require.Error(t, err)
	require.Equal(t, apperr.IsolationViolation, apperr.KindOf(err))
}

func TestVectorSearch_Success(t *testing.T) {
	s, mock := newTestStore(t)
	chunkID, docID := uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{"chunk_id", "document_id", "content", "tenant_id", "score", "document_title", "document_source"}).
		AddRow(chunkID, docID, "text", "acme", 0.9, "Title", "Source")
	mock.ExpectQuery("SELECT c.id AS chunk_id").WillReturnRows(rows)

	hits, err := s.VectorSearch(context.Background(), "acme", []float32{0.1}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, chunkID, hits[0].ChunkID)
	require.Equal(t, 0.9, hits[0].Score)
}
