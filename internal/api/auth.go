package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

type issueTokenRequest struct {
	TenantID    string   `json:"tenant_id" binding:"required"`
	UserID      string   `json:"user_id" binding:"required"`
	Permissions []string `json:"permissions"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshTokenRequest struct {
	RefreshToken string   `json:"refresh_token" binding:"required"`
	Permissions  []string `json:"permissions"`
}

// issueToken implements the unauthenticated token-exchange surface named by
// spec §6 and exercised as `issue_token` in §8 scenario 4. The caller
// supplies the tenant/user/permissions it wants minted directly; this
// service has no separate user-credential store (spec §4.2 only defines
// token shape and verification, not how callers authenticate to obtain one).
func (h *handlers) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.issueToken", err, nil))
		return
	}
	access, refresh, err := h.deps.Gate.IssueToken(c.Request.Context(), req.TenantID, req.UserID, req.Permissions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

// refreshToken implements POST /auth/refresh (spec §4.2 `refresh`), rotating
// both tokens and rejecting reuse of an already-redeemed refresh token.
func (h *handlers) refreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.refreshToken", err, nil))
		return
	}
	access, refresh, err := h.deps.Gate.Refresh(c.Request.Context(), req.RefreshToken, req.Permissions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, tokenResponse{AccessToken: access, RefreshToken: refresh})
}
