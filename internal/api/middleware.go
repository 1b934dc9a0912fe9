// Package api implements the Request API (spec §4.9, component C9): a
// gin router exposing chat, ingestion, and tenant-admin endpoints over
// every other component, grounded on the teacher's
// apps/rag-loader/internal/middleware/tenant.go (auth extraction) and
// apps/rest-api/internal/api/middleware.go (gin middleware chain shape).
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

const authContextKey = "auth_context"

// authMiddleware validates the bearer token via the Auth Gate and attaches
// the resulting AuthContext to the gin context; every tenant-aware route
// uses it, per spec §4.2/§4.8 — chat and document handlers take tenant_id
// only from this AuthContext; the tenant admin routes address a tenant by
// the :id path parameter.
func authMiddleware(gate *authgate.Gate, logger obs.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, err := gate.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(authContextKey, auth)
		c.Next()
	}
}

// requirePermission aborts with 403 unless the authenticated caller holds
// the named permission (spec §4.2's admin/exact/prefix-wildcard model).
func requirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := mustAuth(c)
		if !authgate.HasPermission(auth.Permissions, permission) {
			writeError(c, apperr.New(apperr.Forbidden, "api.requirePermission", nil, map[string]any{"permission": permission}))
			c.Abort()
			return
		}
		c.Next()
	}
}

func mustAuth(c *gin.Context) *authgate.AuthContext {
	v, _ := c.Get(authContextKey)
	auth, _ := v.(*authgate.AuthContext)
	return auth
}

// writeError maps an apperr.Error (or any error) to the status code spec
// §6/§7 mandates; IsolationViolation is always collapsed to a bare 500
// with no structured detail leaked to the client.
func writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	status := apperr.HTTPStatus(appErr.Kind)
	if appErr.Kind == apperr.IsolationViolation {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": appErr.Kind, "message": appErr.Error()}
	if appErr.Kind == apperr.RateLimited && appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(appErr.RetryAfter))
		body["retry_after_seconds"] = appErr.RetryAfter
	}
	c.JSON(status, body)
}
