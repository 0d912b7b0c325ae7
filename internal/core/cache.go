package core

import "time"

// CachedPayload is one row of the persistent fetch cache. Value holds the
// serialized provider-agnostic payload; Source, SeriesID, and Metadata are
// diagnostic tags for stats and selective invalidation.
type CachedPayload struct {
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Source    string            `json:"source,omitempty"`
	SeriesID  string            `json:"series_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Fresh reports whether the entry is still within its TTL at the given
// instant.
func (p *CachedPayload) Fresh(now time.Time) bool {
	if p == nil {
		return false
	}
	return now.Before(p.ExpiresAt)
}

// CacheStats summarizes the persistent cache for the admin surface.
type CacheStats struct {
	Total     int64            `json:"total"`
	Active    int64            `json:"active"`
	Expired   int64            `json:"expired"`
	BySource  map[string]int64 `json:"by_source,omitempty"`
	SizeBytes int64            `json:"size_bytes"`
}
