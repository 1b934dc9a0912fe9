// Package ess implements the Enterprise Search Service Adapter (spec
// §4.5, component C5): the hardest subsystem, a protocol client for an
// external search service reached only through a file-upload ingestion
// endpoint and an NDJSON-streaming search endpoint. Grounded on the
// teacher's apps/rag-loader/internal/resilience/circuit_breaker.go state
// machine shape, reimplemented against sony/gobreaker + cenkalti/backoff.
package ess

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

// ClassifiedError carries the Kind an HTTP/transport failure was mapped
// to, plus an optional Retry-After hint (spec §4.5.6).
type ClassifiedError struct {
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxRetries  int
	PersonaID   int
}

// Client is the ESS HTTP client shared by all C5 operations.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  obs.Logger
}

// NewClient constructs a Client with a circuit breaker wrapping every
// outbound call, matching the teacher's circuit-breaker-around-every-call
// pattern but backed by sony/gobreaker instead of the hand-rolled version.
func NewClient(cfg Config, logger obs.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	settings := gobreaker.Settings{
		Name:        "ess",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.WithPrefix("ess"),
	}
}

// do executes req through the circuit breaker, classifying any failure.
// Auth/validation failures are never retried by the caller's backoff loop
// because ClassifyStatus maps them to kinds whose Retryable() is false.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &ClassifiedError{Kind: KindTransient, Err: err}
		}
		if resp.StatusCode >= 300 {
			kind := ClassifyStatus(resp.StatusCode)
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			_ = resp.Body.Close()
			return nil, &ClassifiedError{Kind: kind, Status: resp.StatusCode, RetryAfter: retryAfter}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ClassifiedError{Kind: KindTransient, Err: err}
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// withRetry runs op up to c.cfg.MaxRetries+1 times using exponential
// backoff (base 2s), stopping immediately on a non-retryable
// ClassifiedError (spec §4.5.3/§4.5.6).
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	attempts := 0

	operation := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		var ce *ClassifiedError
		if errors.As(err, &ce) && !ce.Kind.Retryable() {
			return backoff.Permanent(err)
		}
		if attempts >= c.cfg.MaxRetries+1 {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		var ce *ClassifiedError
		if errors.As(err, &ce) {
			return classifiedToAppErr(ce)
		}
		return apperr.Wrap(apperr.BackendTransient, "ess.withRetry", err)
	}
	return nil
}

func classifiedToAppErr(ce *ClassifiedError) error {
	switch ce.Kind {
	case KindAuthFailed:
		return apperr.New(apperr.Unauthorized, "ess", ce, map[string]any{"status": ce.Status})
	case KindValidation:
		return apperr.New(apperr.ValidationFailed, "ess", ce, map[string]any{"status": ce.Status})
	case KindRateLimited:
		e := apperr.New(apperr.RateLimited, "ess", ce, map[string]any{"status": ce.Status})
		e.RetryAfter = int(ce.RetryAfter.Seconds())
		return e
	default:
		return apperr.New(apperr.BackendTransient, "ess", ce, map[string]any{"status": ce.Status, "kind": ce.Kind})
	}
}

// Reachable implements the spec §6 `GET /persona` reachability probe: a
// cheap, side-effect-free call used to confirm the backend is up before
// relying on it, without creating a chat session or touching tenant data.
func (c *Client) Reachable(ctx context.Context) error {
	const op = "ess.Reachable"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/persona", nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	resp, err := c.do(req)
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, op, err)
	}
	_ = resp.Body.Close()
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
