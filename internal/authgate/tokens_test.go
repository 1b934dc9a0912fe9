package authgate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)

	tok, err := ti.IssueAccessToken("acme", "user-1", []string{"documents:read"}, "sess-1")
	require.NoError(t, err)

	claims, err := ti.Verify(tok, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "acme", claims.TenantID)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "sess-1", claims.SessionID)
	require.Equal(t, TokenAccess, claims.Type)
}

func TestVerify_WrongType(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	tok, err := ti.IssueRefreshToken("acme", "user-1", "sess-1")
	require.NoError(t, err)

	_, err = ti.Verify(tok, TokenAccess)
	require.Error(t, err)
	require.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestVerify_Expired(t *testing.T) {
	ti := NewTokenIssuer("test-secret", -time.Minute, 24*time.Hour)
	tok, err := ti.IssueAccessToken("acme", "user-1", nil, "")
	require.NoError(t, err)

	_, err = ti.Verify(tok, TokenAccess)
	require.Error(t, err)
	require.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestVerify_WrongSecret(t *testing.T) {
	ti := NewTokenIssuer("secret-a", time.Hour, time.Hour)
	tok, err := ti.IssueAccessToken("acme", "user-1", nil, "")
	require.NoError(t, err)

	other := NewTokenIssuer("secret-b", time.Hour, time.Hour)
	_, err = other.Verify(tok, TokenAccess)
	require.Error(t, err)
}
