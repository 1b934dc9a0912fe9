// Package apperr defines the error kinds of spec §7 and their propagation
// policy: a stable Kind, an operation name, a wrapped cause, and optional
// structured context for logging.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is a stable error identifier shared across every component.
type Kind string

const (
	Unauthorized       Kind = "Unauthorized"
	Forbidden          Kind = "Forbidden"
	RateLimited        Kind = "RateLimited"
	TenantUnavailable  Kind = "TenantUnavailable"
	QuotaExceeded      Kind = "QuotaExceeded"
	ValidationFailed   Kind = "ValidationFailed"
	BackendTransient   Kind = "BackendTransient"
	BackendUnavailable Kind = "BackendUnavailable"
	IsolationViolation Kind = "IsolationViolation"
	Internal           Kind = "Internal"
	NotFound           Kind = "NotFound"
	AlreadyExists      Kind = "AlreadyExists"
	Conflict           Kind = "Conflict"
)

// Error is the error type every component returns; Op names the failing
// operation ("tenant.Create", "ess.Search") for log correlation.
type Error struct {
	Kind       Kind
	Op         string
	Err        error
	Context    map[string]any
	RetryAfter int // seconds; only meaningful for Kind == RateLimited
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error, wrapping cause with github.com/pkg/errors so
// stack traces are preserved the way the teacher's services package does.
func New(kind Kind, op string, cause error, context map[string]any) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, op)
	}
	return &Error{Kind: kind, Op: op, Err: wrapped, Context: context}
}

// Wrap is a convenience for the common case of no structured context.
func Wrap(kind Kind, op string, cause error) *Error {
	return New(kind, op, cause, nil)
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, else Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the status code mandated by spec §6/§7.
// IsolationViolation never reaches an HTTP response body with detail: it
// is always surfaced as a bare 500.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case RateLimited:
		return http.StatusTooManyRequests
	case TenantUnavailable, NotFound:
		return http.StatusNotFound
	case QuotaExceeded, Conflict, AlreadyExists:
		return http.StatusConflict
	case ValidationFailed:
		return http.StatusBadRequest
	case BackendTransient, BackendUnavailable, IsolationViolation, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
