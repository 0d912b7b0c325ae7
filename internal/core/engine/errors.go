package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Category is the closed set of failure classes the retry controller
// understands. Provider clients normalize their wire-level failures into a
// category at the boundary; nothing downstream switches on provider types.
type Category string

const (
	// CategoryThrottled marks an explicit rate-exhaustion signal from the
	// provider. Retryable, optionally carrying the provider's Retry-After.
	CategoryThrottled Category = "throttled"
	// CategoryTransient marks network timeouts, connection failures, and
	// provider-side 5xx-class failures. Retryable.
	CategoryTransient Category = "transient"
	// CategoryFatal marks malformed requests, not-found, auth failures, and
	// response-parse failures. Never retried: repeating them only burns
	// rate-limiter budget on guaranteed failures.
	CategoryFatal Category = "fatal"
)

// Retryable reports whether the category permits another attempt.
func (c Category) Retryable() bool {
	return c == CategoryThrottled || c == CategoryTransient
}

// SourceError is a provider failure normalized to a category.
type SourceError struct {
	Category   Category
	StatusCode int
	RetryAfter time.Duration
	Op         string
	Err        error
}

func (e *SourceError) Error() string {
	if e == nil {
		return "source error"
	}
	msg := string(e.Category)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Throttled wraps err as a rate-exhaustion signal with the provider's
// requested pause, if any.
func Throttled(op string, retryAfter time.Duration, err error) *SourceError {
	return &SourceError{Category: CategoryThrottled, StatusCode: 429, RetryAfter: retryAfter, Op: op, Err: err}
}

// Transient wraps err as a retryable transport or server failure.
func Transient(op string, err error) *SourceError {
	return &SourceError{Category: CategoryTransient, Op: op, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(op string, err error) *SourceError {
	return &SourceError{Category: CategoryFatal, Op: op, Err: err}
}

// Fatalf builds a fatal error from a format string.
func Fatalf(op, format string, args ...any) *SourceError {
	return &SourceError{Category: CategoryFatal, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithStatus tags the error with the provider's HTTP status.
func (e *SourceError) WithStatus(status int) *SourceError {
	if e == nil {
		return nil
	}
	e.StatusCode = status
	return e
}

// Classify maps an arbitrary error to a category. Tagged errors keep their
// category; transport-level timeouts and connection failures read as
// transient; everything unrecognized is fatal so unknown failures are never
// retried blindly.
func Classify(err error) Category {
	if err == nil {
		return CategoryFatal
	}

	var serr *SourceError
	if errors.As(err, &serr) && serr != nil {
		return serr.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return CategoryTransient
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return CategoryTransient
	}

	return CategoryFatal
}

// RetryAfterOf extracts the provider-requested pause from a throttled error,
// or zero when none applies.
func RetryAfterOf(err error) time.Duration {
	var serr *SourceError
	if errors.As(err, &serr) && serr != nil && serr.Category == CategoryThrottled {
		return serr.RetryAfter
	}
	return 0
}
