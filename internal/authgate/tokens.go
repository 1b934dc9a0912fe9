package authgate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

// TokenIssuer mints and verifies access/refresh tokens per spec §4.2.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, issuer: "retrieval-orchestrator"}
}

// IssueAccessToken mints a signed access token, bound to sessionID when it
// is non-empty; a token with an empty sessionID carries no session claim.
func (ti *TokenIssuer) IssueAccessToken(tenantID, userID string, permissions []string, sessionID string) (string, error) {
	return ti.issue(tenantID, userID, permissions, sessionID, TokenAccess, ti.accessTTL)
}

// IssueRefreshToken mints a signed refresh token; refresh tokens carry no
// permissions and are redeemed only via Gate.Refresh (spec §4.2 scenario 4).
func (ti *TokenIssuer) IssueRefreshToken(tenantID, userID string, sessionID string) (string, error) {
	return ti.issue(tenantID, userID, nil, sessionID, TokenRefresh, ti.refreshTTL)
}

func (ti *TokenIssuer) issue(tenantID, userID string, permissions []string, sessionID string, typ TokenType, ttl time.Duration) (string, error) {
	const op = "authgate.issue"
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ti.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID:    tenantID,
		UserID:      userID,
		Permissions: permissions,
		SessionID:   sessionID,
		Type:        typ,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(ti.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, op, err)
	}
	return signed, nil
}

// Verify parses and validates a token's signature and expiration, and
// confirms it carries the expected type. It does not check session
// validity — callers that need session binding (Gate.Authenticate) do that
// separately once they have TenantID/SessionID from the claims.
func (ti *TokenIssuer) Verify(tokenString string, want TokenType) (*Claims, error) {
	const op = "authgate.Verify"
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.Unauthorized, op, nil, map[string]any{"alg": t.Method.Alg()})
		}
		return ti.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, apperr.New(apperr.Unauthorized, op, err, nil)
	}
	if claims.Type != want {
		return nil, apperr.New(apperr.Unauthorized, op, nil, map[string]any{"expected_type": want, "got": claims.Type})
	}
	return claims, nil
}
