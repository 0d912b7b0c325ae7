package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelaySchedule(t *testing.T) {
	policy := DefaultRetryPolicy()

	require.Equal(t, time.Duration(0), policy.Delay(0))
	require.Equal(t, 2*time.Second, policy.Delay(1))
	require.Equal(t, 4*time.Second, policy.Delay(2))
	require.Equal(t, 8*time.Second, policy.Delay(3))
	require.Equal(t, 16*time.Second, policy.Delay(4))
	require.Equal(t, 32*time.Second, policy.Delay(5))
	// Capped from here on.
	require.Equal(t, 32*time.Second, policy.Delay(6))
	require.Equal(t, 32*time.Second, policy.Delay(20))
}

func TestRetryPolicyDelayCustomCap(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 3, MaxDelay: 5 * time.Second}

	require.Equal(t, time.Second, policy.Delay(1))
	require.Equal(t, 3*time.Second, policy.Delay(2))
	require.Equal(t, 5*time.Second, policy.Delay(3))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts:   4,
		InitialDelay:  time.Millisecond,
		MaxDelay:      8 * time.Millisecond,
		BackoffFactor: 2,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}

	calls := 0
	result, attempts, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", Transient("fetch", errors.New("connection reset"))
		}
		return "payload", nil
	})

	require.NoError(t, err)
	require.Equal(t, "payload", result)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)

	require.Len(t, delays, 2)
	require.Equal(t, time.Millisecond, delays[0])
	require.Equal(t, 2*time.Millisecond, delays[1])
	for i := 1; i < len(delays); i++ {
		require.GreaterOrEqual(t, delays[i], delays[i-1], "delays must not decrease")
	}
}

func TestRetryFatalShortCircuits(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, InitialDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	fatal := Fatalf("fetch", "series does not exist")
	_, attempts, err := Retry(context.Background(), policy, func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, fatal
	})

	require.Equal(t, 1, calls, "fatal errors must not be retried")
	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, fatal)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	_, attempts, err := Retry(context.Background(), policy, func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, Transient("fetch", errors.New("upstream 503"))
	})

	require.Equal(t, 3, calls)
	require.Equal(t, 3, attempts)
	require.Error(t, err)
	require.Equal(t, CategoryTransient, Classify(err))
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}

	calls := 0
	_, _, err := Retry(context.Background(), policy, func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, Throttled("fetch", 30*time.Millisecond, errors.New("rate limited"))
		}
		return []byte("ok"), nil
	})

	require.NoError(t, err)
	require.Len(t, delays, 1)
	require.Equal(t, 30*time.Millisecond, delays[0], "Retry-After beyond the computed delay wins")
}

func TestRetryCancelledContext(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, InitialDelay: time.Minute, BackoffFactor: 2}

	ctx, cancel := context.WithCancel(context.Background())
	transient := Transient("fetch", errors.New("flaky"))

	calls := 0
	_, attempts, err := Retry(ctx, policy, func(ctx context.Context) ([]byte, error) {
		calls++
		cancel()
		return nil, transient
	})

	require.Equal(t, 1, calls, "cancellation must stop the backoff sleep")
	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, transient)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"throttled", Throttled("op", time.Second, errors.New("429")), CategoryThrottled},
		{"transient", Transient("op", errors.New("503")), CategoryTransient},
		{"fatal", Fatal("op", errors.New("404")), CategoryFatal},
		{"wrapped fatal", errors.Join(errors.New("outer"), Fatal("op", errors.New("404"))), CategoryFatal},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"plain", errors.New("mystery"), CategoryFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestRetryAfterOf(t *testing.T) {
	require.Equal(t, 45*time.Second, RetryAfterOf(Throttled("op", 45*time.Second, nil)))
	require.Equal(t, time.Duration(0), RetryAfterOf(Transient("op", errors.New("x"))))
	require.Equal(t, time.Duration(0), RetryAfterOf(nil))
}
