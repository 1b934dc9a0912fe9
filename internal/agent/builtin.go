package agent

import (
	"context"
	"fmt"

	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/orchestrator"
)

// BuiltinTools returns the fixed tool set spec §4.8 names: vector_search,
// graph_search, hybrid_search, comprehensive_search, entity_relationships,
// entity_timeline, onyx_search, and onyx_answer_with_quote. Each is a pure
// function of its arguments and the caller's AuthContext — none accept a
// tenant_id argument; the tenant is always auth.TenantID.
func BuiltinTools() []Tool {
	return []Tool{
		vectorSearchTool(),
		graphSearchTool(),
		hybridSearchTool(),
		comprehensiveSearchTool(),
		entityRelationshipsTool(),
		entityTimelineTool(),
		onyxSearchTool(),
		onyxAnswerWithQuoteTool(),
	}
}

func vectorSearchTool() Tool {
	return Tool{
		Name:        "vector_search",
		Description: "Semantic search over ingested document chunks for the caller's tenant.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}, "top_k": map[string]any{"type": "integer"}},
			"required":   []string{"query"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			vecs, err := s.Embedder.Embed(ctx, []string{query})
			if err != nil || len(vecs) == 0 {
				return nil, fmt.Errorf("embedding query: %w", err)
			}
			topK := argInt(args, "top_k", 5)
			threshold := argFloat(args, "threshold", 0.0)
			return s.Vector.VectorSearch(ctx, auth.TenantID, vecs[0], topK, threshold)
		},
	}
}

func hybridSearchTool() Tool {
	return Tool{
		Name:        "hybrid_search",
		Description: "Combined lexical + semantic search over ingested document chunks.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}, "top_k": map[string]any{"type": "integer"}, "vector_weight": map[string]any{"type": "number"}},
			"required":   []string{"query"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			vecs, err := s.Embedder.Embed(ctx, []string{query})
			if err != nil || len(vecs) == 0 {
				return nil, fmt.Errorf("embedding query: %w", err)
			}
			topK := argInt(args, "top_k", 5)
			threshold := argFloat(args, "threshold", 0.0)
			weight := argFloat(args, "vector_weight", 0.6)
			return s.Vector.HybridSearch(ctx, auth.TenantID, vecs[0], query, topK, threshold, weight)
		},
	}
}

func graphSearchTool() Tool {
	return Tool{
		Name:        "graph_search",
		Description: "Search the tenant's knowledge graph for entities, facts, or similar nodes.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}, "kind": map[string]any{"type": "string", "enum": []string{"similarity", "entities", "facts"}}, "limit": map[string]any{"type": "integer"}},
			"required":   []string{"query"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			kind := graphstore.SearchSimilarity
			if k, ok := args["kind"].(string); ok && k != "" {
				kind = graphstore.SearchKind(k)
			}
			limit := argInt(args, "limit", 10)
			return s.Graph.Search(ctx, auth.TenantID, query, kind, limit)
		},
	}
}

func entityRelationshipsTool() Tool {
	return Tool{
		Name:        "entity_relationships",
		Description: "List the relationships of one entity in the tenant's knowledge graph.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"entity_id": map[string]any{"type": "string"}, "direction": map[string]any{"type": "string", "enum": []string{"in", "out", "both"}}, "limit": map[string]any{"type": "integer"}},
			"required":   []string{"entity_id"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			entityID, err := argString(args, "entity_id")
			if err != nil {
				return nil, err
			}
			dir := graphstore.DirectionBoth
			if d, ok := args["direction"].(string); ok && d != "" {
				dir = graphstore.Direction(d)
			}
			limit := argInt(args, "limit", 10)
			return s.Graph.EntityRelationships(ctx, auth.TenantID, entityID, dir, nil, limit)
		},
	}
}

func entityTimelineTool() Tool {
	return Tool{
		Name:        "entity_timeline",
		Description: "List the time-ordered fact history of one entity in the tenant's knowledge graph.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"entity_id": map[string]any{"type": "string"}, "limit": map[string]any{"type": "integer"}},
			"required":   []string{"entity_id"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			entityID, err := argString(args, "entity_id")
			if err != nil {
				return nil, err
			}
			limit := argInt(args, "limit", 20)
			return s.Graph.EntityTimeline(ctx, auth.TenantID, entityID, limit)
		},
	}
}

func comprehensiveSearchTool() Tool {
	return Tool{
		Name:        "comprehensive_search",
		Description: "Fan out across vector, graph, and enterprise search and synthesize one answer (spec §4.7).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			flags := orchestrator.DefaultFlags()
			flags.UseESS = s.ESS != nil
			flags.ESSDocSetID = s.ESSDocSetID
			return s.Orchestrator.Query(ctx, auth.TenantID, query, flags)
		},
	}
}

func onyxSearchTool() Tool {
	return Tool{
		Name:        "onyx_search",
		Description: "Search the enterprise search service's document set and return its generated answer.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}, "max_retries": map[string]any{"type": "integer"}},
			"required":   []string{"query"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			if s.ESS == nil {
				return nil, fmt.Errorf("enterprise search is not configured for this deployment")
			}
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			maxRetries := argInt(args, "max_retries", 3)
			return s.ESS.Search(ctx, query, s.ESSDocSetID, maxRetries), nil
		},
	}
}

// quotedAnswer pairs onyx_search's answer with the source documents it
// drew on, so the caller can render inline citations without a second
// round trip to ESS.
type quotedAnswer struct {
	Answer string `json:"answer"`
	Quotes []quote `json:"quotes"`
}

type quote struct {
	DocumentID string  `json:"document_id"`
	Link       string  `json:"link"`
	Score      float64 `json:"score"`
}

func onyxAnswerWithQuoteTool() Tool {
	return Tool{
		Name:        "onyx_answer_with_quote",
		Description: "Like onyx_search, but shapes the result as an answer plus the quoted source documents backing it.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}, "max_retries": map[string]any{"type": "integer"}},
			"required":   []string{"query"},
		},
		Run: func(ctx context.Context, auth *authgate.AuthContext, s *Services, args map[string]any) (any, error) {
			if s.ESS == nil {
				return nil, fmt.Errorf("enterprise search is not configured for this deployment")
			}
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			maxRetries := argInt(args, "max_retries", 3)
			res := s.ESS.Search(ctx, query, s.ESSDocSetID, maxRetries)
			if !res.Success {
				return nil, fmt.Errorf("onyx search failed after %d attempts: %s", res.Attempt, res.Error)
			}
			quotes := make([]quote, 0, len(res.SourceDocs))
			for _, d := range res.SourceDocs {
				quotes = append(quotes, quote{DocumentID: d.DocumentID, Link: d.Link, Score: d.Score})
			}
			return quotedAnswer{Answer: res.Answer, Quotes: quotes}, nil
		},
	}
}
