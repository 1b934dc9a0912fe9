// Package tenant implements the Tenant Registry (spec §4.1, component C1):
// the single source of truth for tenant existence, status, and quotas.
package tenant

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// Registry is the Tenant Registry contract.
type Registry interface {
	Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error)
	Get(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context, status models.TenantStatus) ([]*models.Tenant, error)
	UpdateStatus(ctx context.Context, id string, status models.TenantStatus) error
	Delete(ctx context.Context, id string, force bool) error
	// Stats aggregates row counts across every entity a tenant owns, for
	// admin dashboards (supplemental feature, SPEC_FULL §4).
	Stats(ctx context.Context, id string) (*Stats, error)
	// RequireActive resolves a tenant and fails TenantUnavailable if it is
	// missing or not active; used by every other component per spec §4.1.
	RequireActive(ctx context.Context, id string) (*models.Tenant, error)
}

// Stats is the aggregate row-count report for a tenant.
type Stats struct {
	Documents     int64 `json:"documents"`
	Chunks        int64 `json:"chunks"`
	Sessions      int64 `json:"sessions"`
	Entities      int64 `json:"entities"`
	Relationships int64 `json:"relationships"`
	Facts         int64 `json:"facts"`
	Episodes      int64 `json:"episodes"`
}

type registry struct {
	db     *sqlx.DB
	logger obs.Logger
}

// New constructs a sqlx/pgx-backed Registry.
func New(db *sqlx.DB, logger obs.Logger) Registry {
	return &registry{db: db, logger: logger.WithPrefix("tenant_registry")}
}

func (r *registry) Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	const op = "tenant.Create"
	if t.Status == "" {
		t.Status = models.TenantActive
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	const q = `
		INSERT INTO tenants (id, name, status, max_documents, max_storage_mb, ess_persona_id, ess_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.Name, t.Status, t.MaxDocuments, t.MaxStorageMB, t.ESSPersonaID, t.ESSEnabled, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.AlreadyExists, op, err, map[string]any{"tenant_id": t.ID})
		}
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return t, nil
}

func (r *registry) Get(ctx context.Context, id string) (*models.Tenant, error) {
	const op = "tenant.Get"
	var t models.Tenant
	const q = `SELECT id, name, status, max_documents, max_storage_mb, ess_persona_id, ess_cc_pair_id, ess_enabled, created_at, updated_at FROM tenants WHERE id = $1`
	if err := r.db.GetContext(ctx, &t, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, op, err, map[string]any{"tenant_id": id})
		}
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return &t, nil
}

func (r *registry) RequireActive(ctx context.Context, id string) (*models.Tenant, error) {
	const op = "tenant.RequireActive"
	t, err := r.Get(ctx, id)
	if err != nil {
		if k, ok := apperr.As(err); ok && k.Kind == apperr.NotFound {
			return nil, apperr.New(apperr.TenantUnavailable, op, err, map[string]any{"tenant_id": id})
		}
		return nil, err
	}
	if t.Status != models.TenantActive {
		return nil, apperr.New(apperr.TenantUnavailable, op, nil, map[string]any{"tenant_id": id, "status": t.Status})
	}
	return t, nil
}

func (r *registry) List(ctx context.Context, status models.TenantStatus) ([]*models.Tenant, error) {
	const op = "tenant.List"
	var ts []*models.Tenant
	var err error
	if status == "" {
		err = r.db.SelectContext(ctx, &ts, `SELECT id, name, status, max_documents, max_storage_mb, ess_persona_id, ess_cc_pair_id, ess_enabled, created_at, updated_at FROM tenants ORDER BY created_at`)
	} else {
		err = r.db.SelectContext(ctx, &ts, `SELECT id, name, status, max_documents, max_storage_mb, ess_persona_id, ess_cc_pair_id, ess_enabled, created_at, updated_at FROM tenants WHERE status = $1 ORDER BY created_at`, status)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return ts, nil
}

func (r *registry) UpdateStatus(ctx context.Context, id string, status models.TenantStatus) error {
	const op = "tenant.UpdateStatus"
	res, err := r.db.ExecContext(ctx, `UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, op, nil, map[string]any{"tenant_id": id})
	}
	return nil
}

// Delete cascades across every tenant-owned row when force is set; otherwise
// it refuses if the tenant owns any Documents (spec §4.1).
func (r *registry) Delete(ctx context.Context, id string, force bool) error {
	const op = "tenant.Delete"

	if !force {
		var docCount int64
		if err := r.db.GetContext(ctx, &docCount, `SELECT count(*) FROM documents WHERE tenant_id = $1`, id); err != nil {
			return apperr.Wrap(apperr.Internal, op, err)
		}
		if docCount > 0 {
			return apperr.New(apperr.Conflict, op, nil, map[string]any{"tenant_id": id, "documents": docCount})
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Cascade order matches ownership: chunks/episodes depend on documents,
	// sessions and graph objects depend on the tenant directly. ESS
	// bindings are not listed here — they live only in the in-process
	// ess.BindingCache LRU (internal/ess/documentset.go), never in
	// Postgres, so there is no table to delete from.
	cascadeTables := []string{"chunks", "documents", "sessions", "facts", "relationships", "entities", "episodes"}
	for _, table := range cascadeTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE tenant_id = $1", id); err != nil {
			return apperr.Wrap(apperr.Internal, op, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, op, nil, map[string]any{"tenant_id": id})
	}
	return tx.Commit()
}

func (r *registry) Stats(ctx context.Context, id string) (*Stats, error) {
	const op = "tenant.Stats"
	var s Stats
	queries := map[string]*int64{
		"documents":     &s.Documents,
		"chunks":        &s.Chunks,
		"sessions":      &s.Sessions,
		"entities":      &s.Entities,
		"relationships": &s.Relationships,
		"facts":         &s.Facts,
		"episodes":      &s.Episodes,
	}
	for table, dest := range queries {
		if err := r.db.GetContext(ctx, dest, "SELECT count(*) FROM "+table+" WHERE tenant_id = $1", id); err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	// Postgres unique_violation SQLSTATE is 23505; pgx surfaces it via the
	// driver-level error's Code field, but to stay driver-agnostic here we
	// match on the textual code the way the teacher's repository layer does
	// when it can't import the pgconn error type directly.
	return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key"))
}
