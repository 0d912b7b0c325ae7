package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/econlens/econlens/internal/core"
)

// memoryPayloadStore is an in-memory CacheStore for fetcher tests.
type memoryPayloadStore struct {
	entries   map[string]*core.CachedPayload
	cooldowns map[string]*core.Cooldown
	clock     func() time.Time

	getErr error
	setErr error
	sets   int
}

func newMemoryPayloadStore(clock func() time.Time) *memoryPayloadStore {
	return &memoryPayloadStore{
		entries:   make(map[string]*core.CachedPayload),
		cooldowns: make(map[string]*core.Cooldown),
		clock:     clock,
	}
}

func (m *memoryPayloadStore) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now().UTC()
}

func (m *memoryPayloadStore) GetPayload(ctx context.Context, key string) (*core.CachedPayload, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	entry := m.entries[key]
	if entry == nil || !entry.Fresh(m.now()) {
		return nil, nil
	}
	return entry, nil
}

func (m *memoryPayloadStore) GetPayloadStale(ctx context.Context, key string) (*core.CachedPayload, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[key], nil
}

func (m *memoryPayloadStore) SetPayload(ctx context.Context, entry *core.CachedPayload, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	now := m.now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(ttl)
	m.entries[entry.Key] = entry
	return nil
}

func (m *memoryPayloadStore) GetCooldown(ctx context.Context, source string) (*core.Cooldown, error) {
	return m.cooldowns[source], nil
}

func (m *memoryPayloadStore) RecordCooldown(ctx context.Context, source string, until time.Time) error {
	m.cooldowns[source] = &core.Cooldown{Source: source, Until: until, LastThrottledAt: m.now(), Hits: 1}
	return nil
}

func (m *memoryPayloadStore) seed(key, value string, ttl time.Duration) {
	now := m.now()
	m.entries[key] = &core.CachedPayload{
		Key:       key,
		Value:     value,
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(ttl),
	}
}

func quickRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, BackoffFactor: 2}
}

func testFetcher(store CacheStore) *Fetcher {
	return &Fetcher{
		Store: store,
		Limiters: NewLimiterSet(map[string]RateLimit{
			"fred": {RequestsPerWindow: 100, WindowDuration: time.Minute},
		}, 0),
		Retry:   quickRetry(),
		MaxWait: time.Second,
	}
}

func TestFetchFreshHitSkipsLimiterAndNetwork(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.seed("key1", `{"v":1}`, time.Hour)

	fetcher := testFetcher(store)

	calls := 0
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, nil
		},
	})

	require.NoError(t, err)
	require.Equal(t, 0, calls, "fresh hits must not reach the network")
	require.True(t, result.FromCache)
	require.False(t, result.Stale)
	require.Equal(t, 0, result.Attempts)
	require.Equal(t, []byte(`{"v":1}`), result.Payload)
	require.Equal(t, 0, fetcher.Limiters.For("fred").Snapshot().InWindow,
		"fresh hits must not consume rate-limiter budget")
}

func TestFetchMissFetchesAndCaches(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	fetcher := testFetcher(store)

	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source:   "fred",
		Key:      "key1",
		SeriesID: "GDPC1",
		TTL:      time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			return []byte(`{"v":2}`), nil
		},
	})

	require.NoError(t, err)
	require.False(t, result.FromCache)
	require.False(t, result.Stale)
	require.Equal(t, 1, result.Attempts)
	require.False(t, result.ExpiresAt.IsZero())

	cached := store.entries["key1"]
	require.NotNil(t, cached, "success must write the cache")
	require.Equal(t, `{"v":2}`, cached.Value)
	require.Equal(t, "fred", cached.Source)
	require.Equal(t, "GDPC1", cached.SeriesID)

	require.Equal(t, 1, fetcher.Limiters.For("fred").Snapshot().InWindow)
}

func TestFetchExhaustedRetriesFallsBackToStale(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.seed("key1", `{"v":"old"}`, -time.Minute) // already expired

	fetcher := testFetcher(store)

	var events []EventKind
	fetcher.OnEvent = func(e Event) { events = append(events, e.Kind) }

	calls := 0
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, Transient("fetch", errors.New("connect refused"))
		},
	})

	require.NoError(t, err, "stale data beats an error")
	require.Equal(t, 3, calls)
	require.True(t, result.FromCache)
	require.True(t, result.Stale)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, []byte(`{"v":"old"}`), result.Payload)
	require.Contains(t, events, EventStaleFallback)
}

func TestFetchExhaustedRetriesNoEntryPropagates(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	fetcher := testFetcher(store)

	final := Transient("fetch", errors.New("connect refused"))
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			return nil, final
		},
	})

	require.Nil(t, result)
	require.ErrorIs(t, err, final)
}

func TestFetchFatalErrorSingleAttemptStillFallsBack(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.seed("key1", `{"v":"old"}`, -time.Minute)

	fetcher := testFetcher(store)

	calls := 0
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, Fatalf("fetch", "bad request")
		},
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls, "fatal errors consume exactly one attempt")
	require.True(t, result.FromCache)
	require.True(t, result.Stale)
}

func TestFetchWaitTimeoutFallsBackToStale(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.seed("key1", `{"v":"old"}`, -time.Minute)

	fetcher := &Fetcher{
		Store: store,
		Limiters: NewLimiterSet(map[string]RateLimit{
			"fred": {RequestsPerWindow: 1, WindowDuration: time.Hour},
		}, 0),
		Retry:   quickRetry(),
		MaxWait: 20 * time.Millisecond,
	}

	// Consume the only slot so the fetch has to wait out its budget.
	require.True(t, fetcher.Limiters.For("fred").TryAcquire())

	calls := 0
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			calls++
			return []byte("fresh"), nil
		},
	})

	require.NoError(t, err)
	require.Equal(t, 0, calls, "a timed-out wait must not reach the network")
	require.True(t, result.FromCache)
	require.True(t, result.Stale)
}

func TestFetchWaitTimeoutNoEntryReturnsErrWaitTimeout(t *testing.T) {
	store := newMemoryPayloadStore(nil)

	fetcher := &Fetcher{
		Store: store,
		Limiters: NewLimiterSet(map[string]RateLimit{
			"fred": {RequestsPerWindow: 1, WindowDuration: time.Hour},
		}, 0),
		Retry:   quickRetry(),
		MaxWait: 20 * time.Millisecond,
	}
	require.True(t, fetcher.Limiters.For("fred").TryAcquire())

	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			return []byte("fresh"), nil
		},
	})

	require.Nil(t, result)
	require.ErrorIs(t, err, ErrWaitTimeout)
}

func TestFetchNoCacheBypassesStore(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.seed("key1", `{"v":"cached"}`, time.Hour)

	fetcher := testFetcher(store)

	calls := 0
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source:  "fred",
		Key:     "key1",
		TTL:     time.Hour,
		NoCache: true,
		Call: func(ctx context.Context) ([]byte, error) {
			calls++
			return []byte("fresh"), nil
		},
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.False(t, result.FromCache)
	require.Equal(t, 0, store.sets, "no-cache must not write")
	require.Equal(t, `{"v":"cached"}`, store.entries["key1"].Value, "no-cache must not clobber")
}

func TestFetchStoreFailureDegradesToMiss(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.getErr = errors.New("disk full")
	store.setErr = errors.New("disk full")

	fetcher := testFetcher(store)

	var events []EventKind
	fetcher.OnEvent = func(e Event) { events = append(events, e.Kind) }

	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			return []byte("fresh"), nil
		},
	})

	require.NoError(t, err, "a broken store must never fail the fetch")
	require.Equal(t, []byte("fresh"), result.Payload)
	require.Contains(t, events, EventCacheError)
}

func TestFetchThrottleRecordsCooldown(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	fetcher := testFetcher(store)
	fetcher.Retry = RetryPolicy{MaxAttempts: 1}

	_, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			return nil, Throttled("fetch", 90*time.Second, errors.New("quota exhausted"))
		},
	})

	require.Error(t, err)
	cooldown := store.cooldowns["fred"]
	require.NotNil(t, cooldown, "a terminal throttle must persist its Retry-After")
	require.True(t, cooldown.Until.After(time.Now().UTC().Add(time.Minute)))
}

func TestFetchActiveCooldownWithinBudgetDelays(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.cooldowns["fred"] = &core.Cooldown{
		Source: "fred",
		Until:  time.Now().UTC().Add(30 * time.Millisecond),
	}

	fetcher := testFetcher(store)

	start := time.Now()
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			return []byte("fresh"), nil
		},
	})

	require.NoError(t, err)
	require.False(t, result.FromCache)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "the cooldown must be waited out")
}

func TestFetchCooldownBeyondBudgetFallsBack(t *testing.T) {
	store := newMemoryPayloadStore(nil)
	store.seed("key1", `{"v":"old"}`, -time.Minute)
	store.cooldowns["fred"] = &core.Cooldown{
		Source: "fred",
		Until:  time.Now().UTC().Add(time.Hour),
	}

	fetcher := testFetcher(store)
	fetcher.MaxWait = 50 * time.Millisecond

	calls := 0
	result, err := fetcher.Fetch(context.Background(), FetchRequest{
		Source: "fred",
		Key:    "key1",
		TTL:    time.Hour,
		Call: func(ctx context.Context) ([]byte, error) {
			calls++
			return []byte("fresh"), nil
		},
	})

	require.NoError(t, err)
	require.Equal(t, 0, calls)
	require.True(t, result.FromCache)
	require.True(t, result.Stale)
}

func TestFetchRequestValidation(t *testing.T) {
	fetcher := testFetcher(newMemoryPayloadStore(nil))

	_, err := fetcher.Fetch(context.Background(), FetchRequest{Key: "k", Call: func(ctx context.Context) ([]byte, error) { return nil, nil }})
	require.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), FetchRequest{Source: "fred", Call: func(ctx context.Context) ([]byte, error) { return nil, nil }})
	require.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), FetchRequest{Source: "fred", Key: "k"})
	require.Error(t, err)
}
