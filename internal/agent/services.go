package agent

import (
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/orchestrator"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
)

// Services bundles every backend collaborator the tool registry can call.
// Passed explicitly into New rather than held as module-level singletons,
// per spec §9's redesign flag against the teacher's package-level service
// locator pattern.
type Services struct {
	Vector       vectorstore.Store
	Graph        graphstore.Store
	ESS          *ess.Client
	ESSDocSetID  int
	Orchestrator *orchestrator.Orchestrator
	Embedder     collab.Embedder
	LLM          collab.LLM
}
