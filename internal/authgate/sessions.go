package authgate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// SessionStore is the Redis-backed session record used to bind an access
// token to a live session (spec §4.2), grounded on the teacher's
// pkg/services/session_service.go.
type SessionStore struct {
	redis  *redis.Client
	logger obs.Logger
	ttl    time.Duration
}

func NewSessionStore(rdb *redis.Client, logger obs.Logger, ttl time.Duration) *SessionStore {
	return &SessionStore{redis: rdb, logger: logger.WithPrefix("sessions"), ttl: ttl}
}

func sessionKey(tenantID, id string) string {
	return fmt.Sprintf("session:%s:%s", tenantID, id)
}

// Create starts a new session for a tenant/user pair.
func (s *SessionStore) Create(ctx context.Context, tenantID, userID string, metadata map[string]any) (*models.Session, error) {
	const op = "authgate.SessionStore.Create"
	now := time.Now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	if err := s.redis.Set(ctx, sessionKey(tenantID, sess.ID), raw, s.ttl).Err(); err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return sess, nil
}

// Get fetches a session, failing with Unauthorized if it does not exist,
// has expired, or belongs to a different tenant than claimed.
func (s *SessionStore) Get(ctx context.Context, tenantID, id string) (*models.Session, error) {
	const op = "authgate.SessionStore.Get"
	raw, err := s.redis.Get(ctx, sessionKey(tenantID, id)).Bytes()
	if err == redis.Nil {
		return nil, apperr.New(apperr.Unauthorized, op, err, map[string]any{"session_id": id})
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	if sess.TenantID != tenantID {
		return nil, apperr.New(apperr.IsolationViolation, op, nil, map[string]any{"session_tenant": sess.TenantID, "claim_tenant": tenantID})
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return nil, apperr.New(apperr.Unauthorized, op, nil, map[string]any{"session_id": id, "reason": "expired"})
	}
	return &sess, nil
}

// Touch extends a session's idle-timeout window.
func (s *SessionStore) Touch(ctx context.Context, tenantID, id string) error {
	const op = "authgate.SessionStore.Touch"
	if err := s.redis.Expire(ctx, sessionKey(tenantID, id), s.ttl).Err(); err != nil {
		return apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return nil
}

// Revoke deletes a session, invalidating any access token bound to it.
func (s *SessionStore) Revoke(ctx context.Context, tenantID, id string) error {
	const op = "authgate.SessionStore.Revoke"
	if err := s.redis.Del(ctx, sessionKey(tenantID, id)).Err(); err != nil {
		return apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return nil
}

// MarkRefreshUsed records that a refresh token's jti has been redeemed, so a
// second redemption of the same token is rejected (spec §8 scenario 4).
// Keyed independently of sessions since refresh rotation must survive
// session churn.
func (s *SessionStore) MarkRefreshUsed(ctx context.Context, jti string, ttl time.Duration) (alreadyUsed bool, err error) {
	const op = "authgate.SessionStore.MarkRefreshUsed"
	key := "refresh_used:" + jti
	ok, err := s.redis.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return !ok, nil
}
