package engine

import (
	"context"
	"math"
	"time"
)

// RetryPolicy governs how many tries a unit of work receives and how long to
// pause between them. The zero value is usable; unset fields take the
// defaults below.
type RetryPolicy struct {
	MaxAttempts   int // total tries, first included
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// OnRetry observes each scheduled retry for diagnostics. It never
	// affects control flow.
	OnRetry func(attempt int, delay time.Duration, err error)
}

const (
	defaultMaxAttempts   = 4 // one initial try plus three retries
	defaultInitialDelay  = 2 * time.Second
	defaultMaxDelay      = 32 * time.Second
	defaultBackoffFactor = 2.0
)

// DefaultRetryPolicy returns the standard backoff schedule: 2s, 4s, 8s,
// capped at 32s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   defaultMaxAttempts,
		InitialDelay:  defaultInitialDelay,
		MaxDelay:      defaultMaxDelay,
		BackoffFactor: defaultBackoffFactor,
	}
}

// Delay returns the pause after attempt (1-indexed) fails:
// min(MaxDelay, InitialDelay * BackoffFactor^(attempt-1)). There is no delay
// before the first attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	initial := p.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = defaultBackoffFactor
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = defaultMaxDelay
	}

	delay := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if delay <= 0 || delay > ceiling {
		delay = ceiling
	}
	return delay
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Retry executes op up to the policy's attempt ceiling, pausing per Delay
// between tries. Only throttled and transient failures are retried; a fatal
// failure returns after exactly one invocation. A throttled error carrying a
// Retry-After longer than the computed delay stretches that pause. The final
// error surfaces only after exhaustion, together with the number of attempts
// consumed.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, int, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, attempt - 1, lastErr
		}

		result, err := op(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !Classify(err).Retryable() {
			return zero, attempt, err
		}
		if attempt == attempts {
			break
		}

		delay := policy.Delay(attempt)
		if after := RetryAfterOf(err); after > delay {
			delay = after
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return zero, attempt, lastErr
		}
	}
	return zero, attempts, lastErr
}

// sleepCtx pauses for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
