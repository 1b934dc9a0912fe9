package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

type createTenantRequest struct {
	ID           string `json:"id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	MaxDocuments int    `json:"max_documents"`
	MaxStorageMB int    `json:"max_storage_mb"`
	ESSPersonaID int    `json:"ess_persona_id"`
}

type updateStatusRequest struct {
	Status models.TenantStatus `json:"status" binding:"required"`
}

// createTenant implements POST /tenants (admin-only, spec §4.1).
func (h *handlers) createTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.createTenant", err, nil))
		return
	}
	t := &models.Tenant{
		ID:           req.ID,
		Name:         req.Name,
		MaxDocuments: req.MaxDocuments,
		MaxStorageMB: req.MaxStorageMB,
		ESSPersonaID: req.ESSPersonaID,
	}
	created, err := h.deps.Tenants.Create(c.Request.Context(), t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(201, created)
}

// getTenant implements GET /tenants/:id.
func (h *handlers) getTenant(c *gin.Context) {
	t, err := h.deps.Tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, t)
}

// tenantStats implements GET /tenants/:id/stats (SPEC_FULL §4 supplemented
// feature: aggregate row counts across every entity a tenant owns).
func (h *handlers) tenantStats(c *gin.Context) {
	stats, err := h.deps.Tenants.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, stats)
}

// updateTenantStatus implements PATCH /tenants/:id/status (admin-only).
func (h *handlers) updateTenantStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.updateTenantStatus", err, nil))
		return
	}
	if err := h.deps.Tenants.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}

// deleteTenant implements DELETE /tenants/:id (admin-only); ?force=true
// bypasses the soft-delete guard named in spec §4.1.
func (h *handlers) deleteTenant(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := h.deps.Tenants.Delete(c.Request.Context(), c.Param("id"), force); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}
