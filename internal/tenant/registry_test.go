package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

func newTestRegistry(t *testing.T) (Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return New(sqlxDB, obs.Noop()), mock
}

func TestCreate_Success(t *testing.T) {
	reg, mock := newTestRegistry(t)
	mock.ExpectExec("INSERT INTO tenants").WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := reg.Create(context.Background(), &models.Tenant{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	require.Equal(t, models.TenantActive, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_AlreadyExists(t *testing.T) {
	reg, mock := newTestRegistry(t)
	mock.ExpectExec("INSERT INTO tenants").WillReturnError(
		&testDupErr{},
	)

	_, err := reg.Create(context.Background(), &models.Tenant{ID: "acme"})
	require.Error(t, err)
	require.Equal(t, apperr.AlreadyExists, apperr.KindOf(err))
}

type testDupErr struct{}

func (e *testDupErr) Error() string { return "pq: duplicate key value violates unique constraint" }

func TestRequireActive_Suspended(t *testing.T) {
	reg, mock := newTestRegistry(t)
	rows := sqlmock.NewRows([]string{"id", "name", "status", "max_documents", "max_storage_mb", "ess_persona_id", "ess_cc_pair_id", "ess_enabled", "created_at", "updated_at"}).
		AddRow("acme", "Acme", models.TenantSuspended, 10, 100, 0, nil, false, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, name, status").WillReturnRows(rows)

	_, err := reg.RequireActive(context.Background(), "acme")
	require.Error(t, err)
	require.Equal(t, apperr.TenantUnavailable, apperr.KindOf(err))
}

func TestDelete_RefusesWithoutForceWhenDocumentsExist(t *testing.T) {
	reg, mock := newTestRegistry(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	err := reg.Delete(context.Background(), "acme", false)
	require.Error(t, err)
	require.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestDelete_ForceCascades(t *testing.T) {
	reg, mock := newTestRegistry(t)
	mock.ExpectBegin()
	for range []string{"chunks", "documents", "sessions", "facts", "relationships", "entities", "episodes"} {
		mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("DELETE FROM tenants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := reg.Delete(context.Background(), "acme", true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
