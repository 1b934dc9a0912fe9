package authgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

// RateLimiter tracks failed verifications keyed by a stable identifier
// (token prefix suffices) and locks the identifier out after N failures
// within a sliding window of M minutes (spec §4.2). Counters live in Redis
// when a client is given and in process memory when it is nil; a Redis
// error during a check counts as zero attempts, so the check passes.
// Mirrors the teacher's pkg/auth/rate_limiter.go.
type RateLimiter struct {
	redis  *redis.Client
	logger obs.Logger

	maxAttempts   int
	window        time.Duration
	lockoutPeriod time.Duration

	local   sync.Map // identifier -> *localState, used when redis is nil
}

type localState struct {
	mu        sync.Mutex
	attempts  int
	windowAt  time.Time
	lockedAt  time.Time
}

// NewRateLimiter constructs a RateLimiter. N=5 failures / M=15min window
// are the spec's defaults.
func NewRateLimiter(rdb *redis.Client, logger obs.Logger, maxAttempts int, window, lockout time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &RateLimiter{
		redis:         rdb,
		logger:        logger.WithPrefix("ratelimiter"),
		maxAttempts:   maxAttempts,
		window:        window,
		lockoutPeriod: lockout,
	}
}

// CheckLimit returns a RateLimited apperr.Error if identifier is currently
// locked out or has exhausted its attempt budget for the current window.
func (rl *RateLimiter) CheckLimit(ctx context.Context, identifier string) error {
	if rl.redis != nil {
		return rl.checkRedis(ctx, identifier)
	}
	return rl.checkLocal(identifier)
}

// RecordAttempt records an authentication attempt, resetting counters on
// success and incrementing (and possibly locking out) on failure.
func (rl *RateLimiter) RecordAttempt(ctx context.Context, identifier string, success bool) {
	if rl.redis != nil {
		rl.recordRedis(ctx, identifier, success)
	} else {
		rl.recordLocal(identifier, success)
	}
	rl.logger.Info("auth attempt recorded", map[string]any{"identifier": identifier, "success": success})
}

func (rl *RateLimiter) checkRedis(ctx context.Context, identifier string) error {
	lockoutKey := fmt.Sprintf("auth:lockout:%s", identifier)
	locked, err := rl.redis.Exists(ctx, lockoutKey).Result()
	if err == nil && locked > 0 {
		return rateLimitedErr(rl.lockoutPeriod)
	}

	countKey := fmt.Sprintf("auth:attempts:%s", identifier)
	attempts, err := rl.redis.Get(ctx, countKey).Int()
	if err != nil {
		attempts = 0
	}
	if attempts >= rl.maxAttempts {
		_ = rl.redis.Set(ctx, lockoutKey, 1, rl.lockoutPeriod).Err()
		return rateLimitedErr(rl.lockoutPeriod)
	}
	return nil
}

func (rl *RateLimiter) recordRedis(ctx context.Context, identifier string, success bool) {
	countKey := fmt.Sprintf("auth:attempts:%s", identifier)
	lockoutKey := fmt.Sprintf("auth:lockout:%s", identifier)
	if success {
		rl.redis.Del(ctx, countKey, lockoutKey)
		return
	}
	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, countKey, rl.window)
	if _, err := pipe.Exec(ctx); err == nil && incr.Val() >= int64(rl.maxAttempts) {
		rl.redis.Set(ctx, lockoutKey, 1, rl.lockoutPeriod)
	}
}

func (rl *RateLimiter) checkLocal(identifier string) error {
	now := time.Now()
	val, _ := rl.local.LoadOrStore(identifier, &localState{windowAt: now})
	st := val.(*localState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.lockedAt.IsZero() && now.Before(st.lockedAt.Add(rl.lockoutPeriod)) {
		return rateLimitedErr(rl.lockoutPeriod)
	}
	if now.Sub(st.windowAt) > rl.window {
		st.attempts = 0
		st.windowAt = now
	}
	if st.attempts >= rl.maxAttempts {
		st.lockedAt = now
		return rateLimitedErr(rl.lockoutPeriod)
	}
	return nil
}

func (rl *RateLimiter) recordLocal(identifier string, success bool) {
	now := time.Now()
	val, _ := rl.local.LoadOrStore(identifier, &localState{windowAt: now})
	st := val.(*localState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if success {
		st.attempts = 0
		st.lockedAt = time.Time{}
		return
	}
	if now.Sub(st.windowAt) > rl.window {
		st.attempts = 1
		st.windowAt = now
	} else {
		st.attempts++
	}
}
