package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/econlens/econlens/internal/core"
)

// ErrWaitTimeout reports that the bounded wait for a local send slot
// expired. For fallback purposes it is treated exactly like retry
// exhaustion; it reaches callers only when no cached entry exists either.
var ErrWaitTimeout = errors.New("rate limit wait exceeded budget")

// defaultMaxWait bounds the limiter wait when the fetcher is not configured.
const defaultMaxWait = 30 * time.Second

// CallFunc performs the provider-specific network exchange and returns the
// serialized provider-agnostic payload. Implementations normalize failures
// into SourceError categories before returning them.
type CallFunc func(ctx context.Context) ([]byte, error)

// CacheStore is the slice of the persistent store the fetcher consumes. A
// failing store degrades a fetch to cache-miss behavior; it never fails one.
type CacheStore interface {
	GetPayload(ctx context.Context, key string) (*core.CachedPayload, error)
	GetPayloadStale(ctx context.Context, key string) (*core.CachedPayload, error)
	SetPayload(ctx context.Context, entry *core.CachedPayload, ttl time.Duration) error
	GetCooldown(ctx context.Context, source string) (*core.Cooldown, error)
	RecordCooldown(ctx context.Context, source string, until time.Time) error
}

// EventKind tags fetcher diagnostics events.
type EventKind string

const (
	EventCacheHit      EventKind = "cache_hit"
	EventCacheError    EventKind = "cache_error"
	EventWaitTimeout   EventKind = "wait_timeout"
	EventRetry         EventKind = "retry"
	EventFetched       EventKind = "fetched"
	EventStaleFallback EventKind = "stale_fallback"
)

// Event describes one step of an orchestrated fetch for logging and metrics.
// Events are advisory; the fetch outcome never depends on the observer.
type Event struct {
	Kind    EventKind
	Source  string
	Key     string
	Attempt int
	Wait    time.Duration
	Err     error
}

// FetchRequest names one orchestrated fetch.
type FetchRequest struct {
	Source   string            // logical source id, e.g. "fred"
	Key      string            // canonical digest from CacheKey
	SeriesID string            // diagnostic tag carried into cache metadata
	TTL      time.Duration     // call-site TTL for the cache write
	NoCache  bool              // bypass the cache entirely, read and write
	Metadata map[string]string // extra diagnostic tags
	Call     CallFunc
}

func (r FetchRequest) validate() error {
	if r.Source == "" {
		return fmt.Errorf("fetch request missing source")
	}
	if r.Key == "" {
		return fmt.Errorf("fetch request missing cache key")
	}
	if r.Call == nil {
		return fmt.Errorf("fetch request missing call")
	}
	return nil
}

// FetchResult is the tagged outcome of an orchestrated fetch: the payload
// plus where it came from.
type FetchResult struct {
	Payload   []byte
	FromCache bool
	Stale     bool
	Attempts  int
	FetchedAt time.Time // when the payload was produced (cache write time for cached payloads)
	ExpiresAt time.Time // zero when the payload skipped the cache
}

// Fetcher composes the cache, the per-source limiters, and the retry
// controller into the single fetch-with-resilience operation every provider
// client consumes.
type Fetcher struct {
	Store    CacheStore
	Limiters *LimiterSet
	Retry    RetryPolicy
	MaxWait  time.Duration // bound on the rate-limiter wait
	Clock    func() time.Time
	OnEvent  func(Event)
}

// Fetch runs the pipeline: fresh cache check, bounded limiter clearance,
// retry-wrapped network call, cache write, and stale fallback on exhaustion.
// The ordering is deliberate. A fresh hit returns before any limiter
// interaction so cache hits never consume request budget; clearance precedes
// the network so a throttled provider is never poked early; stale cache is
// consulted only after retries (or the wait budget) are spent, so fresh data
// always wins when obtainable within policy.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	if !req.NoCache {
		if entry := f.freshEntry(ctx, req); entry != nil {
			f.emit(Event{Kind: EventCacheHit, Source: req.Source, Key: req.Key})
			return &FetchResult{
				Payload:   []byte(entry.Value),
				FromCache: true,
				Attempts:  0,
				FetchedAt: entry.CreatedAt,
				ExpiresAt: entry.ExpiresAt,
			}, nil
		}
	}

	budget := f.MaxWait
	if budget <= 0 {
		budget = defaultMaxWait
	}

	remaining, ok := f.awaitCooldown(ctx, req.Source, budget)
	if !ok {
		f.emit(Event{Kind: EventWaitTimeout, Source: req.Source, Key: req.Key, Err: ErrWaitTimeout})
		return f.fallback(ctx, req, 0, ErrWaitTimeout)
	}

	waitStart := f.now()
	if limiter := f.Limiters.For(req.Source); !limiter.Acquire(ctx, remaining) {
		f.emit(Event{Kind: EventWaitTimeout, Source: req.Source, Key: req.Key, Wait: f.now().Sub(waitStart), Err: ErrWaitTimeout})
		return f.fallback(ctx, req, 0, ErrWaitTimeout)
	}

	policy := f.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.emit(Event{Kind: EventRetry, Source: req.Source, Key: req.Key, Attempt: attempt, Wait: delay, Err: err})
		if f.Retry.OnRetry != nil {
			f.Retry.OnRetry(attempt, delay, err)
		}
	}

	payload, attempts, err := Retry(ctx, policy, req.Call)
	if err == nil {
		now := f.now()
		expiresAt := f.cachePayload(ctx, req, payload, now)
		f.emit(Event{Kind: EventFetched, Source: req.Source, Key: req.Key, Attempt: attempts, Wait: now.Sub(waitStart)})
		return &FetchResult{
			Payload:   payload,
			Attempts:  attempts,
			FetchedAt: now,
			ExpiresAt: expiresAt,
		}, nil
	}

	if after := RetryAfterOf(err); after > 0 && f.Store != nil {
		if cerr := f.Store.RecordCooldown(ctx, req.Source, f.now().Add(after)); cerr != nil {
			f.emit(Event{Kind: EventCacheError, Source: req.Source, Err: cerr})
		}
	}

	return f.fallback(ctx, req, attempts, err)
}

// freshEntry reads the cache for a still-fresh payload, degrading store
// failures to a miss.
func (f *Fetcher) freshEntry(ctx context.Context, req FetchRequest) *core.CachedPayload {
	if f.Store == nil {
		return nil
	}
	entry, err := f.Store.GetPayload(ctx, req.Key)
	if err != nil {
		f.emit(Event{Kind: EventCacheError, Source: req.Source, Key: req.Key, Err: err})
		return nil
	}
	return entry
}

// awaitCooldown sleeps out any persisted provider cooldown that fits inside
// the wait budget, returning the budget that remains. A cooldown longer than
// the budget (or a cancellation mid-sleep) reports false, which callers treat
// as a wait timeout.
func (f *Fetcher) awaitCooldown(ctx context.Context, source string, budget time.Duration) (time.Duration, bool) {
	if f.Store == nil {
		return budget, true
	}

	cooldown, err := f.Store.GetCooldown(ctx, source)
	if err != nil {
		f.emit(Event{Kind: EventCacheError, Source: source, Err: err})
		return budget, true
	}

	now := f.now()
	if !cooldown.Active(now) {
		return budget, true
	}

	pause := cooldown.Until.Sub(now)
	if pause >= budget {
		return 0, false
	}
	if err := sleepCtx(ctx, pause); err != nil {
		return 0, false
	}
	return budget - pause, true
}

// cachePayload writes a successful result with the call-site TTL, returning
// the expiry for provenance. Write failures degrade silently beyond the
// diagnostic event.
func (f *Fetcher) cachePayload(ctx context.Context, req FetchRequest, payload []byte, now time.Time) time.Time {
	if f.Store == nil || req.NoCache || req.TTL <= 0 {
		return time.Time{}
	}

	entry := &core.CachedPayload{
		Key:      req.Key,
		Value:    string(payload),
		Source:   req.Source,
		SeriesID: req.SeriesID,
		Metadata: req.Metadata,
	}
	if err := f.Store.SetPayload(ctx, entry, req.TTL); err != nil {
		f.emit(Event{Kind: EventCacheError, Source: req.Source, Key: req.Key, Err: err})
		return time.Time{}
	}
	return now.Add(req.TTL)
}

// fallback serves the most recent cached payload regardless of expiry. Only
// when no entry exists at all does the terminal error propagate.
func (f *Fetcher) fallback(ctx context.Context, req FetchRequest, attempts int, final error) (*FetchResult, error) {
	if f.Store == nil || req.NoCache {
		return nil, final
	}

	entry, err := f.Store.GetPayloadStale(ctx, req.Key)
	if err != nil {
		f.emit(Event{Kind: EventCacheError, Source: req.Source, Key: req.Key, Err: err})
		return nil, final
	}
	if entry == nil {
		return nil, final
	}

	now := f.now()
	f.emit(Event{Kind: EventStaleFallback, Source: req.Source, Key: req.Key, Attempt: attempts, Err: final})
	return &FetchResult{
		Payload:   []byte(entry.Value),
		FromCache: true,
		Stale:     !entry.Fresh(now),
		Attempts:  attempts,
		FetchedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

func (f *Fetcher) emit(e Event) {
	if f != nil && f.OnEvent != nil {
		f.OnEvent(e)
	}
}

func (f *Fetcher) now() time.Time {
	if f != nil && f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}
