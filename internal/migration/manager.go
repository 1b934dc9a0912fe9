// Package migration drives golang-migrate against the Postgres schema
// backing the Tenant Registry (C1) and Vector Store Adapter (C3): tenants,
// documents, chunks, and the local mirror tables tenant.Stats counts from.
// Grounded on the teacher's pkg/database/migration/manager.go, trimmed to
// the Up/Down/Version operations cmd/migrate actually exposes.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
)

// Config controls where migrations live and how long a run may take.
type Config struct {
	MigrationsPath string
	Timeout        time.Duration
}

// Manager wraps a golang-migrate instance bound to one sqlx.DB.
type Manager struct {
	db       *sqlx.DB
	cfg      Config
	migrator *migrate.Migrate
}

func NewManager(db *sqlx.DB, cfg Config) (*Manager, error) {
	if db == nil {
		return nil, errors.New("migration: db connection is required")
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations/sql"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Manager{db: db, cfg: cfg}, nil
}

func (m *Manager) init() error {
	if m.migrator != nil {
		return nil
	}
	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration: create postgres driver: %w", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", m.cfg.MigrationsPath), "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration: create migrator: %w", err)
	}
	m.migrator = migrator
	return nil
}

// Up applies every pending migration.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.init(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := m.migrator.Up()
		if err == migrate.ErrNoChange {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("migration: timed out after %s", m.cfg.Timeout)
	}
}

// Down rolls back a single migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.init(); err != nil {
		return err
	}
	err := m.migrator.Steps(-1)
	if err == migrate.ErrNoChange {
		return nil
	}
	return err
}

// Version reports the current schema version and whether it is dirty.
func (m *Manager) Version() (uint, bool, error) {
	if err := m.init(); err != nil {
		return 0, false, err
	}
	v, dirty, err := m.migrator.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the underlying migrate source/database handles.
func (m *Manager) Close() error {
	if m.migrator == nil {
		return nil
	}
	sourceErr, dbErr := m.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("migration: source close: %w", sourceErr)
	}
	return dbErr
}
