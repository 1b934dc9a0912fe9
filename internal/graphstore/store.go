// Package graphstore implements the Graph Store Adapter (spec §4.4,
// component C4): a tenant-namespaced knowledge graph reachable over HTTP
// through an external extractor/graph service. The teacher repo has no
// graph database of its own; this package follows its repository-adapter
// idiom (interface + Impl struct) against a new external collaborator.
package graphstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// SearchKind selects the shape of search results returned by Search.
type SearchKind string

const (
	SearchSimilarity SearchKind = "similarity"
	SearchEntities   SearchKind = "entities"
	SearchFacts      SearchKind = "facts"
)

// Direction constrains entity_relationships traversal.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Result is one hit from Search, tagged by kind.
type Result struct {
	Kind   SearchKind `json:"kind"`
	Score  float64    `json:"score"`
	Entity *models.Entity `json:"entity,omitempty"`
	Fact   *models.Fact   `json:"fact,omitempty"`
}

// Edge is one relationship returned by EntityRelationships.
type Edge struct {
	Relationship models.Relationship `json:"relationship"`
	OtherEntity  models.Entity       `json:"other_entity"`
}

// FactEvent is one timeline entry returned by EntityTimeline.
type FactEvent struct {
	Fact    models.Fact `json:"fact"`
	ValidAt time.Time   `json:"valid_at"`
}

// Path is one result of ShortestPath: an alternating sequence of entities
// and the relationships connecting them.
type Path struct {
	Entities      []models.Entity       `json:"entities"`
	Relationships []models.Relationship `json:"relationships"`
}

// Stats is the C4 aggregate reporting shape (spec §4.4).
type Stats struct {
	Entities      int64            `json:"entities"`
	Relationships int64            `json:"relationships"`
	Facts         int64            `json:"facts"`
	Episodes      int64            `json:"episodes"`
	ByType        map[string]int64 `json:"by_type"`
}

// Store is the Graph Store Adapter contract.
type Store interface {
	AddEpisode(ctx context.Context, ep models.Episode) (*models.EpisodeRef, error)
	Search(ctx context.Context, tenantID, query string, kind SearchKind, limit int) ([]Result, error)
	EntityRelationships(ctx context.Context, tenantID, entityID string, dir Direction, types []string, limit int) ([]Edge, error)
	EntityTimeline(ctx context.Context, tenantID, entityID string, limit int) ([]FactEvent, error)
	ShortestPath(ctx context.Context, tenantID, sourceName, targetName string, maxDepth int) ([]Path, error)
	Stats(ctx context.Context, tenantID string) (*Stats, error)
}

// Namespace derives the tenant-scoped graph namespace deterministically,
// matching the invariant of spec §4.4.
func Namespace(tenantID string) string {
	return "tenant:" + tenantID
}

type store struct {
	client  *http.Client
	baseURL string
	logger  obs.Logger
}

// New constructs an HTTP-backed Store against an external graph/extractor
// service; the service is an external collaborator per spec §6, so a thin
// JSON client is correct here (see DESIGN.md).
func New(baseURL string, client *http.Client, logger obs.Logger) Store {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &store{client: client, baseURL: baseURL, logger: logger.WithPrefix("graphstore")}
}

// AddEpisode is a two-phase operation: (1) delegate the episode content to
// the extractor's ingestion endpoint, (2) a post-write tagging pass that
// re-reads newly created objects within the episode's time window and
// stamps tenant_id. Both phases share ctx; the call only returns success
// once phase 2 completes (spec §4.4).
func (s *store) AddEpisode(ctx context.Context, ep models.Episode) (*models.EpisodeRef, error) {
	const op = "graphstore.AddEpisode"
	ns := Namespace(ep.TenantID)

	extractReq := map[string]any{
		"group_id":           ns,
		"name":               ep.Name,
		"episode_body":       ep.Content,
		"reference_time":     ep.ReferenceTime,
		"source_description": ep.SourceDescription,
	}
	var extractResp struct {
		EpisodeID string `json:"episode_id"`
	}
	if err := s.post(ctx, "/episodes", extractReq, &extractResp); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}

	tagReq := map[string]any{
		"group_id":   ns,
		"episode_id": extractResp.EpisodeID,
		"tenant_id":  ep.TenantID,
		"since":      ep.ReferenceTime,
	}
	if err := s.post(ctx, "/episodes/tag", tagReq, nil); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}

	return &models.EpisodeRef{ID: extractResp.EpisodeID, TenantID: ep.TenantID}, nil
}

func (s *store) Search(ctx context.Context, tenantID, query string, kind SearchKind, limit int) ([]Result, error) {
	const op = "graphstore.Search"
	req := map[string]any{"group_ids": []string{Namespace(tenantID)}, "query": query, "kind": kind, "limit": limit}
	var resp struct {
		Results []Result `json:"results"`
	}
	if err := s.post(ctx, "/search", req, &resp); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return s.assertResultsTenant(op, tenantID, resp.Results)
}

func (s *store) EntityRelationships(ctx context.Context, tenantID, entityID string, dir Direction, types []string, limit int) ([]Edge, error) {
	const op = "graphstore.EntityRelationships"
	req := map[string]any{"group_id": Namespace(tenantID), "entity_id": entityID, "direction": dir, "types": types, "limit": limit}
	var resp struct {
		Edges []Edge `json:"edges"`
	}
	if err := s.post(ctx, "/entities/relationships", req, &resp); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return s.assertEdgesTenant(op, tenantID, resp.Edges)
}

func (s *store) EntityTimeline(ctx context.Context, tenantID, entityID string, limit int) ([]FactEvent, error) {
	const op = "graphstore.EntityTimeline"
	req := map[string]any{"group_id": Namespace(tenantID), "entity_id": entityID, "limit": limit}
	var resp struct {
		Events []FactEvent `json:"events"`
	}
	if err := s.post(ctx, "/entities/timeline", req, &resp); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	for _, e := range resp.Events {
		if e.Fact.TenantID != tenantID {
			s.logger.Critical("isolation violation in entity timeline", map[string]any{"caller_tenant": tenantID, "fact_tenant": e.Fact.TenantID})
			return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID})
		}
	}
	sort.Slice(resp.Events, func(i, j int) bool { return resp.Events[i].ValidAt.After(resp.Events[j].ValidAt) })
	return resp.Events, nil
}

func (s *store) ShortestPath(ctx context.Context, tenantID, sourceName, targetName string, maxDepth int) ([]Path, error) {
	const op = "graphstore.ShortestPath"
	req := map[string]any{"group_id": Namespace(tenantID), "source_name": sourceName, "target_name": targetName, "max_depth": maxDepth}
	var resp struct {
		Paths []Path `json:"paths"`
	}
	if err := s.post(ctx, "/paths/shortest", req, &resp); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	for _, p := range resp.Paths {
		for _, e := range p.Entities {
			if e.TenantID != tenantID {
				return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID, "entity_tenant": e.TenantID})
			}
		}
		for _, r := range p.Relationships {
			if r.TenantID != tenantID {
				return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID, "relationship_tenant": r.TenantID})
			}
		}
	}
	return resp.Paths, nil
}

func (s *store) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	const op = "graphstore.Stats"
	req := map[string]any{"group_id": Namespace(tenantID)}
	var stats Stats
	if err := s.post(ctx, "/stats", req, &stats); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return &stats, nil
}

func (s *store) assertResultsTenant(op, tenantID string, results []Result) ([]Result, error) {
	for _, r := range results {
		if r.Entity != nil && r.Entity.TenantID != tenantID {
			return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID, "entity_tenant": r.Entity.TenantID})
		}
		if r.Fact != nil && r.Fact.TenantID != tenantID {
			return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID, "fact_tenant": r.Fact.TenantID})
		}
	}
	return results, nil
}

func (s *store) assertEdgesTenant(op, tenantID string, edges []Edge) ([]Edge, error) {
	for _, e := range edges {
		if e.Relationship.TenantID != tenantID || e.OtherEntity.TenantID != tenantID {
			return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"caller_tenant": tenantID})
		}
	}
	return edges, nil
}

func (s *store) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("graphstore: %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
