// Package models defines the domain data model shared across every
// component (spec §3): tenants, documents, chunks, graph objects,
// sessions, and the ESS binding cache entry.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle state of a Tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantDeleted   TenantStatus = "deleted"
)

// Tenant is the root of the isolation boundary (spec §3).
type Tenant struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Status       TenantStatus   `db:"status" json:"status"`
	MaxDocuments int            `db:"max_documents" json:"max_documents"`
	MaxStorageMB int            `db:"max_storage_mb" json:"max_storage_mb"`
	Metadata     map[string]any `db:"-" json:"metadata,omitempty"`
	ESSPersonaID int            `db:"ess_persona_id" json:"ess_persona_id"`
	ESSCCPairID  *int           `db:"ess_cc_pair_id" json:"ess_cc_pair_id,omitempty"`
	ESSEnabled   bool           `db:"ess_enabled" json:"ess_enabled"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Document owns Chunks and Episodes (spec §3); cascade-deleted with its tenant.
type Document struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	Title     string         `db:"title" json:"title"`
	Source    string         `db:"source" json:"source"`
	Content   string         `db:"content" json:"content"`
	Metadata  map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Chunk is immutable after creation; regenerated on re-ingest.
type Chunk struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	TenantID   string         `db:"tenant_id" json:"tenant_id"`
	DocumentID uuid.UUID      `db:"document_id" json:"document_id"`
	Content    string         `db:"content" json:"content"`
	ChunkIndex int            `db:"chunk_index" json:"chunk_index"`
	TokenCount int            `db:"token_count" json:"token_count,omitempty"`
	Embedding  []float32      `db:"-" json:"-"`
	Metadata   map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Episode is the unit of ingestion into the graph backend (spec §3).
type Episode struct {
	TenantID          string    `json:"tenant_id"`
	Name              string    `json:"name"`
	Content           string    `json:"content"`
	ReferenceTime     time.Time `json:"reference_time"`
	SourceDescription string    `json:"source_description"`
}

// EpisodeRef is the handle returned by add_episode.
type EpisodeRef struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
}

// Entity is a graph node, namespaced to a tenant.
type Entity struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Relationship connects two Entities of the same tenant.
type Relationship struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
}

// Fact references a set of Entities of the same tenant with a validity window.
type Fact struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Content   string     `json:"content"`
	EntityIDs []string   `json:"entity_ids"`
	ValidAt   time.Time  `json:"valid_at"`
	InvalidAt *time.Time `json:"invalid_at,omitempty"`
}

// Session binds an auth token to server-side state (spec §3).
type Session struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ESSBinding is the per-tenant cached (cc_pair_id, document_set_id) pair
// (spec §3 / §4.5.1).
type ESSBinding struct {
	TenantID      string    `json:"tenant_id"`
	CCPairID      int       `json:"cc_pair_id"`
	DocumentSetID int       `json:"document_set_id"`
	CreatedAt     time.Time `json:"created_at"`
}
