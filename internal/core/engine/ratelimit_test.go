package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWindowLimiterValidation(t *testing.T) {
	_, err := NewWindowLimiter(0, time.Minute)
	require.Error(t, err)

	_, err = NewWindowLimiter(-1, time.Minute)
	require.Error(t, err)

	_, err = NewWindowLimiter(1, 0)
	require.Error(t, err)

	limiter, err := NewWindowLimiter(1, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, limiter)
}

func TestWindowLimiterAdmitsUpToLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter, err := NewWindowLimiter(5, time.Minute)
	require.NoError(t, err)
	limiter.Clock = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		require.True(t, limiter.TryAcquire(), "call %d should be admitted", i+1)
	}
	require.False(t, limiter.TryAcquire(), "call past the limit must wait")

	stat := limiter.Snapshot()
	require.Equal(t, 5, stat.InWindow)
	require.Equal(t, 0, stat.Remaining)

	// The oldest stamp ages out and exactly one slot frees.
	now = now.Add(time.Minute + time.Millisecond)
	require.True(t, limiter.TryAcquire())
	require.False(t, limiter.TryAcquire())
}

func TestWindowLimiterExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter, err := NewWindowLimiter(2, time.Second)
	require.NoError(t, err)
	limiter.Clock = func() time.Time { return now }

	require.True(t, limiter.TryAcquire())
	require.True(t, limiter.TryAcquire())
	require.False(t, limiter.TryAcquire())

	now = now.Add(time.Second + 10*time.Millisecond)
	require.True(t, limiter.TryAcquire())
}

func TestWindowLimiterAcquireBlocksUntilSlotFrees(t *testing.T) {
	limiter, err := NewWindowLimiter(1, 50*time.Millisecond)
	require.NoError(t, err)

	require.True(t, limiter.TryAcquire())

	start := time.Now()
	require.True(t, limiter.Acquire(context.Background(), time.Second))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWindowLimiterAcquireTimeout(t *testing.T) {
	limiter, err := NewWindowLimiter(1, time.Hour)
	require.NoError(t, err)

	require.True(t, limiter.TryAcquire())

	start := time.Now()
	require.False(t, limiter.Acquire(context.Background(), 50*time.Millisecond))
	require.Less(t, time.Since(start), time.Second)
}

func TestWindowLimiterAcquireCancellation(t *testing.T) {
	limiter, err := NewWindowLimiter(1, time.Hour)
	require.NoError(t, err)
	require.True(t, limiter.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	require.False(t, limiter.Acquire(ctx, time.Minute))
}

func TestWindowLimiterConcurrentAdmission(t *testing.T) {
	const limit = 8
	const callers = 64

	limiter, err := NewWindowLimiter(limit, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.TryAcquire() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, limit, admitted)
	require.Equal(t, limit, limiter.Snapshot().InWindow)
}

func TestWindowLimiterReset(t *testing.T) {
	limiter, err := NewWindowLimiter(1, time.Hour)
	require.NoError(t, err)

	require.True(t, limiter.TryAcquire())
	require.False(t, limiter.TryAcquire())

	limiter.Reset()
	require.True(t, limiter.TryAcquire())
}

func TestLimiterSetSharesInstancePerSource(t *testing.T) {
	set := NewLimiterSet(map[string]RateLimit{
		"fred": {RequestsPerWindow: 2, WindowDuration: time.Minute},
	}, 0)

	require.Same(t, set.For("fred"), set.For("fred"))
	require.NotSame(t, set.For("fred"), set.For("worldbank"))
	require.Same(t, set.For("fred"), set.For("  FRED "))
}

func TestLimiterSetIndependentSources(t *testing.T) {
	set := NewLimiterSet(map[string]RateLimit{
		"fred":      {RequestsPerWindow: 1, WindowDuration: time.Hour},
		"worldbank": {RequestsPerWindow: 1, WindowDuration: time.Hour},
	}, 0)

	require.True(t, set.For("fred").TryAcquire())
	require.False(t, set.For("fred").TryAcquire())
	require.True(t, set.For("worldbank").TryAcquire(), "sources must not share budget")
}

func TestLimiterSetMargin(t *testing.T) {
	set := NewLimiterSet(map[string]RateLimit{
		"fred": {RequestsPerWindow: 10, WindowDuration: time.Minute},
	}, 0)
	set.ApplySafetyMargin(0.9)

	limit := set.getLimit("fred")
	require.Equal(t, 9, limit.RequestsPerWindow)
}

func TestLimiterSetOverrides(t *testing.T) {
	set := NewLimiterSet(nil, 0)
	set.ApplyOverrides(map[string]int{"fred": 3, "": 9, "worldbank": 0})

	require.Equal(t, 3, set.getLimit("fred").RequestsPerWindow)
	// Zero and empty overrides are ignored; the default stands.
	require.Equal(t, DefaultLimits["worldbank"].RequestsPerWindow, set.getLimit("worldbank").RequestsPerWindow)
}

func TestLimiterSetSnapshotAndReset(t *testing.T) {
	set := NewLimiterSet(map[string]RateLimit{
		"fred":      {RequestsPerWindow: 2, WindowDuration: time.Hour},
		"worldbank": {RequestsPerWindow: 1, WindowDuration: time.Hour},
	}, 0)

	require.True(t, set.For("worldbank").TryAcquire())
	require.True(t, set.For("fred").TryAcquire())

	windows := set.Snapshot()
	require.Len(t, windows, 2)
	require.Equal(t, "fred", windows[0].Source)
	require.Equal(t, 1, windows[0].Stat.InWindow)
	require.Equal(t, "worldbank", windows[1].Source)

	require.True(t, set.Reset("worldbank"))
	require.False(t, set.Reset("unknown"))
	require.True(t, set.For("worldbank").TryAcquire())

	require.Equal(t, 2, set.ResetAll())
	require.Equal(t, 0, set.For("fred").Snapshot().InWindow)
}
