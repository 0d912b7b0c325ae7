package engine

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// minRecheck floors the sleep between blocking re-checks so a congested
// window never degenerates into a busy spin.
const minRecheck = 10 * time.Millisecond

// RateLimit describes one source's request budget.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultLimits provides conservative per-source budgets.
var DefaultLimits = map[string]RateLimit{
	"fred":      {RequestsPerWindow: 120, WindowDuration: time.Minute},
	"worldbank": {RequestsPerWindow: 60, WindowDuration: time.Minute},
}

// fallbackLimit applies to sources with no configured or default budget.
var fallbackLimit = RateLimit{RequestsPerWindow: 30, WindowDuration: time.Minute}

// WindowLimiter admits requests under a sliding window. Every decision
// prunes timestamps older than the trailing window, counts the remainder,
// and records the new instant only when under the limit. Prune, check, and
// record run as one critical section so concurrent callers never over-admit.
type WindowLimiter struct {
	limit  int
	window time.Duration

	// Clock overrides time.Now for tests. Set before first use.
	Clock func() time.Time

	mu     sync.Mutex
	stamps []time.Time
}

// NewWindowLimiter builds a limiter admitting at most limit requests per
// trailing window. A limit under one would block forever, so it is rejected.
func NewWindowLimiter(limit int, window time.Duration) (*WindowLimiter, error) {
	if limit < 1 {
		return nil, errors.New("rate limit must allow at least 1 request per window")
	}
	if window <= 0 {
		return nil, errors.New("rate limit window must be positive")
	}
	return &WindowLimiter{limit: limit, window: window}, nil
}

// TryAcquire reports whether a request may proceed now, recording it if so.
func (l *WindowLimiter) TryAcquire() bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Acquire blocks until a slot frees or maxWait elapses, returning false on
// timeout or context cancellation. Waiters sleep until the oldest recorded
// timestamp ages out, then re-check; timeout is a routine outcome under
// sustained overload, not an error.
func (l *WindowLimiter) Acquire(ctx context.Context, maxWait time.Duration) bool {
	if l == nil {
		return true
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if l.TryAcquire() {
		return true
	}
	if maxWait <= 0 {
		return false
	}

	deadline := l.now().Add(maxWait)
	timer := time.NewTimer(minRecheck)
	defer timer.Stop()

	for {
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return false
		}

		wait := l.untilSlotFrees()
		if wait < minRecheck {
			wait = minRecheck
		}
		if wait > remaining {
			wait = remaining
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}

		if l.TryAcquire() {
			return true
		}
	}
}

// untilSlotFrees computes how long until the oldest in-window timestamp
// ages out. Another waiter may claim the freed slot first, so callers
// re-check after sleeping.
func (l *WindowLimiter) untilSlotFrees() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.stamps) < l.limit {
		return 0
	}
	return l.stamps[0].Add(l.window).Sub(now)
}

// WindowStat is a point-in-time view of one limiter for admin inspection.
type WindowStat struct {
	Limit     int           `json:"limit"`
	Window    time.Duration `json:"window"`
	InWindow  int           `json:"in_window"`
	Remaining int           `json:"remaining"`
	OldestAge time.Duration `json:"oldest_age,omitempty"`
}

// Snapshot reports the current window occupancy.
func (l *WindowLimiter) Snapshot() WindowStat {
	if l == nil {
		return WindowStat{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	stat := WindowStat{
		Limit:     l.limit,
		Window:    l.window,
		InWindow:  len(l.stamps),
		Remaining: l.limit - len(l.stamps),
	}
	if len(l.stamps) > 0 {
		stat.OldestAge = now.Sub(l.stamps[0])
	}
	return stat
}

// Reset clears the recorded window administratively.
func (l *WindowLimiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = nil
}

// prune drops timestamps older than the trailing window. Callers hold mu.
func (l *WindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for keep < len(l.stamps) && l.stamps[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[keep:]...)
	}
}

func (l *WindowLimiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

// LimiterSet owns one WindowLimiter per source, created on first use from
// the configured limits. Each source's limiter carries its own mutex;
// independent sources never contend.
type LimiterSet struct {
	Limits map[string]RateLimit
	Margin float64
	Clock  func() time.Time

	mu       sync.Mutex
	limiters map[string]*WindowLimiter
}

// NewLimiterSet builds a set over the supplied limits, falling back to
// DefaultLimits for sources the map omits.
func NewLimiterSet(limits map[string]RateLimit, margin float64) *LimiterSet {
	return &LimiterSet{Limits: limits, Margin: margin}
}

// For returns the limiter for a source, creating it on first use.
func (s *LimiterSet) For(source string) *WindowLimiter {
	if s == nil {
		return nil
	}

	source = strings.ToLower(strings.TrimSpace(source))

	s.mu.Lock()
	defer s.mu.Unlock()

	if limiter, ok := s.limiters[source]; ok {
		return limiter
	}

	limit := s.getLimit(source)
	limiter, err := NewWindowLimiter(limit.RequestsPerWindow, limit.WindowDuration)
	if err != nil {
		// Configured limits are validated at load; defaults are static.
		limiter, _ = NewWindowLimiter(fallbackLimit.RequestsPerWindow, fallbackLimit.WindowDuration)
	}
	limiter.Clock = s.Clock

	if s.limiters == nil {
		s.limiters = make(map[string]*WindowLimiter)
	}
	s.limiters[source] = limiter
	return limiter
}

// ApplyOverrides merges per-source request overrides (per minute). Overrides
// affect limiters created after the call.
func (s *LimiterSet) ApplyOverrides(overrides map[string]int) {
	if s == nil || len(overrides) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Limits == nil {
		s.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			s.Limits[key] = limit
		}
	}

	for source, value := range overrides {
		source = strings.ToLower(strings.TrimSpace(source))
		if source == "" || value <= 0 {
			continue
		}
		s.Limits[source] = RateLimit{
			RequestsPerWindow: value,
			WindowDuration:    time.Minute,
		}
	}
}

// ApplySafetyMargin adjusts effective limits by a ratio (0-1].
func (s *LimiterSet) ApplySafetyMargin(margin float64) {
	if s == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	s.Margin = margin
}

// SourceWindow pairs a source id with its limiter snapshot.
type SourceWindow struct {
	Source string     `json:"source"`
	Stat   WindowStat `json:"stat"`
}

// Snapshot reports every instantiated limiter, sorted by source.
func (s *LimiterSet) Snapshot() []SourceWindow {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	limiters := make(map[string]*WindowLimiter, len(s.limiters))
	for source, limiter := range s.limiters {
		limiters[source] = limiter
	}
	s.mu.Unlock()

	windows := make([]SourceWindow, 0, len(limiters))
	for source, limiter := range limiters {
		windows = append(windows, SourceWindow{Source: source, Stat: limiter.Snapshot()})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Source < windows[j].Source })
	return windows
}

// Reset clears one source's window, reporting whether it existed.
func (s *LimiterSet) Reset(source string) bool {
	if s == nil {
		return false
	}

	source = strings.ToLower(strings.TrimSpace(source))

	s.mu.Lock()
	limiter, ok := s.limiters[source]
	s.mu.Unlock()

	if !ok {
		return false
	}
	limiter.Reset()
	return true
}

// ResetAll clears every instantiated limiter, returning how many were reset.
func (s *LimiterSet) ResetAll() int {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	limiters := make([]*WindowLimiter, 0, len(s.limiters))
	for _, limiter := range s.limiters {
		limiters = append(limiters, limiter)
	}
	s.mu.Unlock()

	for _, limiter := range limiters {
		limiter.Reset()
	}
	return len(limiters)
}

func (s *LimiterSet) getLimit(source string) RateLimit {
	limits := s.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	if limit, ok := limits[source]; ok {
		return s.applyMargin(limit)
	}
	if limit, ok := DefaultLimits[source]; ok {
		return s.applyMargin(limit)
	}
	return s.applyMargin(fallbackLimit)
}

func (s *LimiterSet) applyMargin(limit RateLimit) RateLimit {
	if s == nil || s.Margin <= 0 || s.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * s.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}
