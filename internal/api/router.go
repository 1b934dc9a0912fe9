package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devmesh/retrieval-orchestrator/internal/agent"
	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/ingestion"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/orchestrator"
	"github.com/devmesh/retrieval-orchestrator/internal/tenant"
)

// Deps bundles every component the Request API dispatches into.
type Deps struct {
	Gate         *authgate.Gate
	Tenants      tenant.Registry
	Coordinator  *ingestion.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Agent        *agent.Runtime
	Logger       obs.Logger
}

// NewRouter builds the gin engine for every C9 route. Grounded on the
// teacher's apps/rag-loader/cmd/loader/main.go router assembly (gin.New +
// gin.Recovery + grouped routes) and apps/rest-api's CORS/panic-recovery
// middleware chain shape.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Logger))

	r.GET("/health", healthHandler)

	h := &handlers{deps: deps}

	// Token-exchange surface (spec §6): unauthenticated, like /health.
	auth := r.Group("/auth")
	{
		auth.POST("/token", h.issueToken)
		auth.POST("/refresh", h.refreshToken)
	}

	authed := r.Group("/")
	authed.Use(authMiddleware(deps.Gate, deps.Logger))
	{
		authed.POST("/chat", h.chat)
		authed.POST("/chat/stream", h.chatStream)

		authed.POST("/documents", requirePermission("documents:write"), h.ingestDocument)
		authed.POST("/documents/:id/reingest", requirePermission("documents:write"), h.reingestDocument)
		authed.DELETE("/documents/:id", requirePermission("documents:write"), h.deleteDocument)

		authed.GET("/tenants/:id", requirePermission("tenants:read"), h.getTenant)
		authed.GET("/tenants/:id/stats", requirePermission("tenants:read"), h.tenantStats)
		authed.POST("/tenants", requirePermission("admin"), h.createTenant)
		authed.PATCH("/tenants/:id/status", requirePermission("admin"), h.updateTenantStatus)
		authed.DELETE("/tenants/:id", requirePermission("admin"), h.deleteTenant)
	}

	return r
}

func healthHandler(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// requestLogger logs one line per request in the teacher's structured
// field style, grounded on apps/rest-api's TracingMiddleware shape.
func requestLogger(logger obs.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request", map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})
	}
}

type handlers struct {
	deps Deps
}
