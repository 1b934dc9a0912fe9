// Package agent implements the Agent Runtime (spec §4.8, component C8):
// a tool-call loop over the LLM collaborator, grounded on the teacher's
// pkg/services/enhanced_tool_registry.go descriptor-slice shape rather
// than reflection-based tool discovery.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
)

// Tool is one callable the agent loop can offer to the LLM. Run never
// accepts a raw tenant_id argument — it learns the caller's tenant from
// auth, per spec §4.8's redesign of the teacher's tool-execution path.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Run         func(ctx context.Context, auth *authgate.AuthContext, services *Services, args map[string]any) (any, error)
}

// Registry is the fixed slice of tools the runtime offers every request.
// Unlike the teacher's EnhancedToolRegistry, which indexes dynamic,
// per-tenant-instantiated tools from a database, this registry is static:
// spec §4.8 names a fixed set of retrieval operations, not arbitrary
// third-party integrations, so there is no template/credential layer here.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a Registry from the given tools, preserving
// registration order for deterministic ToolSpec listing.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs renders every registered tool as a collab.ToolSpec, in
// registration order, for the LLM call.
func (r *Registry) Specs() []collab.ToolSpec {
	specs := make([]collab.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, collab.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return specs
}

// Names returns the registered tool names, sorted, for logging/diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a tool call, translating a missing tool into apperr.NotFound
// so the loop can surface a structured error turn to the LLM rather than
// panicking on an unexpected name.
func (r *Registry) Invoke(ctx context.Context, auth *authgate.AuthContext, services *Services, call collab.ToolCall) (any, error) {
	const op = "agent.Registry.Invoke"
	t, ok := r.tools[call.Name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, op, nil, map[string]any{"tool": call.Name})
	}
	return t.Run(ctx, auth, services, call.Arguments)
}

// argString extracts a required string argument, grounded on the
// teacher's provider operation-param extraction idiom of explicit
// type-asserting helpers over reflection-based binding.
func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

func argInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return def
		}
		return int(i)
	default:
		return def
	}
}

func argFloat(args map[string]any, key string, def float64) float64 {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}
