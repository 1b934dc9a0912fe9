package authgate

import (
	"time"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

func rateLimitedErr(retryAfter time.Duration) error {
	e := apperr.New(apperr.RateLimited, "authgate.RateLimiter", nil, nil)
	e.RetryAfter = int(retryAfter.Seconds())
	return e
}
