package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

func TestRateLimiter_Redis_LocksOutAfterN(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rl := NewRateLimiter(rdb, obs.Noop(), 3, 15*time.Minute, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.CheckLimit(ctx, "id-1"))
		rl.RecordAttempt(ctx, "id-1", false)
	}

	err = rl.CheckLimit(ctx, "id-1")
	require.Error(t, err)
	require.Equal(t, apperr.RateLimited, apperr.KindOf(err))
}

func TestRateLimiter_Redis_SuccessResets(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rl := NewRateLimiter(rdb, obs.Noop(), 3, 15*time.Minute, 15*time.Minute)
	ctx := context.Background()

	rl.RecordAttempt(ctx, "id-2", false)
	rl.RecordAttempt(ctx, "id-2", false)
	rl.RecordAttempt(ctx, "id-2", true)

	require.NoError(t, rl.CheckLimit(ctx, "id-2"))
}

func TestRateLimiter_LocalFallback_LocksOut(t *testing.T) {
	rl := NewRateLimiter(nil, obs.Noop(), 2, 15*time.Minute, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, rl.CheckLimit(ctx, "id-3"))
	rl.RecordAttempt(ctx, "id-3", false)
	require.NoError(t, rl.CheckLimit(ctx, "id-3"))
	rl.RecordAttempt(ctx, "id-3", false)

	err := rl.CheckLimit(ctx, "id-3")
	require.Error(t, err)
	require.Equal(t, apperr.RateLimited, apperr.KindOf(err))
}
