package core

import "time"

// Cooldown records a provider-imposed pause for one source, persisted so
// consecutive short-lived runs keep honoring a Retry-After that outlives the
// process.
type Cooldown struct {
	Source          string    `json:"source"`
	Until           time.Time `json:"until"`
	LastThrottledAt time.Time `json:"last_throttled_at"`
	Hits            int64     `json:"hits"`
}

// Active reports whether the cooldown still applies at the given instant.
func (c *Cooldown) Active(now time.Time) bool {
	if c == nil {
		return false
	}
	return now.Before(c.Until)
}
