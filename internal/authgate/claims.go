// Package authgate implements the Auth Gate (spec §4.2, component C2):
// token issuance/verification, session binding, the permission model, and
// failed-attempt rate limiting.
package authgate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access from refresh tokens (spec §4.2).
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the JWT payload carried by every token, matching spec §4.2 exactly.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	Permissions []string  `json:"permissions"`
	SessionID   string    `json:"session_id,omitempty"`
	Type        TokenType `json:"type"`
}

// AuthContext is the verified, request-scoped identity attached downstream
// (spec §4.2); it is the only way components learn the caller's tenant —
// tools and adapters never accept a tenant_id argument directly (spec §4.8).
type AuthContext struct {
	TenantID    string
	UserID      string
	Permissions []string
	SessionID   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}
