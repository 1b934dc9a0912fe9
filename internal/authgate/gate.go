package authgate

import (
	"context"
	"strings"
	"time"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

// Gate is the single entry point for request authentication and token
// refresh (spec §4.2, component C2).
type Gate struct {
	tokens  *TokenIssuer
	sess    *SessionStore
	limiter *RateLimiter
	logger  obs.Logger

	refreshTTL time.Duration
}

func NewGate(tokens *TokenIssuer, sess *SessionStore, limiter *RateLimiter, refreshTTL time.Duration, logger obs.Logger) *Gate {
	return &Gate{tokens: tokens, sess: sess, limiter: limiter, refreshTTL: refreshTTL, logger: logger.WithPrefix("authgate")}
}

// ExtractBearer pulls the bearer token out of an Authorization header value.
func ExtractBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if tok == "" {
		return "", false
	}
	return tok, true
}

// Authenticate implements spec §4.2: extract the bearer token, verify
// signature/expiration/type==access, and — if the claims carry a
// session_id — require that the session exists, is unexpired, and is bound
// to the same tenant as the claim.
func (g *Gate) Authenticate(ctx context.Context, authHeader string) (*AuthContext, error) {
	const op = "authgate.Authenticate"

	token, ok := ExtractBearer(authHeader)
	if !ok {
		return nil, apperr.New(apperr.Unauthorized, op, nil, map[string]any{"reason": "missing bearer token"})
	}

	if g.limiter != nil {
		if err := g.limiter.CheckLimit(ctx, identifierFor(token)); err != nil {
			return nil, err
		}
	}

	claims, err := g.tokens.Verify(token, TokenAccess)
	if err != nil {
		if g.limiter != nil {
			g.limiter.RecordAttempt(ctx, identifierFor(token), false)
		}
		return nil, err
	}

	if claims.SessionID != "" {
		sess, err := g.sess.Get(ctx, claims.TenantID, claims.SessionID)
		if err != nil {
			return nil, err
		}
		_ = sess
	}

	if g.limiter != nil {
		g.limiter.RecordAttempt(ctx, identifierFor(token), true)
	}

	return &AuthContext{
		TenantID:    claims.TenantID,
		UserID:      claims.UserID,
		Permissions: claims.Permissions,
		SessionID:   claims.SessionID,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// IssueToken mints the first access/refresh pair for a tenant/user pair —
// the token-exchange step named by spec §8 scenario 4 (`issue_token`). It
// opens a session so the minted access token is session-bound like any
// other (spec §4.2's session-validity rule then applies uniformly).
func (g *Gate) IssueToken(ctx context.Context, tenantID, userID string, permissions []string) (accessToken, refreshToken string, err error) {
	const op = "authgate.IssueToken"

	sess, err := g.sess.Create(ctx, tenantID, userID, nil)
	if err != nil {
		return "", "", err
	}

	access, err := g.tokens.IssueAccessToken(tenantID, userID, permissions, sess.ID)
	if err != nil {
		return "", "", apperr.Wrap(apperr.Internal, op, err)
	}
	refresh, err := g.tokens.IssueRefreshToken(tenantID, userID, sess.ID)
	if err != nil {
		return "", "", apperr.Wrap(apperr.Internal, op, err)
	}
	return access, refresh, nil
}

// Refresh redeems a refresh token for a new access/refresh pair, rejecting
// reuse of an already-redeemed refresh token (spec §8 scenario 4: rotation).
func (g *Gate) Refresh(ctx context.Context, refreshToken string, permissions []string) (accessToken, newRefreshToken string, err error) {
	const op = "authgate.Refresh"

	claims, err := g.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return "", "", err
	}

	used, err := g.sess.MarkRefreshUsed(ctx, claims.ID, g.refreshTTL)
	if err != nil {
		return "", "", err
	}
	if used {
		return "", "", apperr.New(apperr.Unauthorized, op, nil, map[string]any{"reason": "refresh token already redeemed", "jti": claims.ID})
	}

	access, err := g.tokens.IssueAccessToken(claims.TenantID, claims.UserID, permissions, claims.SessionID)
	if err != nil {
		return "", "", err
	}
	refresh, err := g.tokens.IssueRefreshToken(claims.TenantID, claims.UserID, claims.SessionID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// identifierFor derives a stable rate-limit key from a token without
// persisting the raw secret in Redis/memory keys.
func identifierFor(token string) string {
	if len(token) > 16 {
		return token[:16]
	}
	return token
}
