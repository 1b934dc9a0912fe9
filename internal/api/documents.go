package api

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/ingestion"
)

type ingestRequest struct {
	Source     string `json:"source" binding:"required"`
	Content    string `json:"content"`
	ESSEnabled bool   `json:"ess_enabled"`
	ESSCCPairID int   `json:"ess_cc_pair_id"`
}

// ingestDocument implements POST /documents: the request body carries the
// raw document as the "content" field, mirroring C6's Input shape directly
// rather than introducing a separate upload DTO. The body is read once and
// unmarshaled manually; Input.Raw is the bytes of the "content" field.
func (h *handlers) ingestDocument(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.ingestDocument", err, nil))
		return
	}
	var req ingestRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Source == "" {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.ingestDocument", err, nil))
		return
	}

	auth := mustAuth(c)
	in := ingestion.Input{TenantID: auth.TenantID, Source: req.Source, Raw: []byte(req.Content)}
	result, err := h.deps.Coordinator.Ingest(c.Request.Context(), in, req.ESSEnabled, req.ESSCCPairID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(202, result)
}

// reingestDocument implements POST /documents/:id/reingest: idempotent
// delete-then-insert re-ingestion of an existing document (spec §4.6).
func (h *handlers) reingestDocument(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.reingestDocument", err, nil))
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.reingestDocument", err, nil))
		return
	}
	var req ingestRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Source == "" {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.reingestDocument", err, nil))
		return
	}

	auth := mustAuth(c)
	in := ingestion.Input{TenantID: auth.TenantID, Source: req.Source, Raw: []byte(req.Content)}
	result, err := h.deps.Coordinator.Reingest(c.Request.Context(), in, docID, req.ESSEnabled, req.ESSCCPairID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, result)
}

// deleteDocument implements DELETE /documents/:id: removes the document's
// chunks from the vector store; the graph and ESS side-effects of the
// original ingest are left in place per spec §4.6's non-goal on
// cross-backend delete propagation.
func (h *handlers) deleteDocument(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.deleteDocument", err, nil))
		return
	}
	auth := mustAuth(c)
	if err := h.deps.Coordinator.DeleteDocument(c.Request.Context(), auth.TenantID, docID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}
