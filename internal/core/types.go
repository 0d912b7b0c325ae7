package core

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies a logical data provider.
type Source string

const (
	SourceFRED      Source = "fred"
	SourceWorldBank Source = "worldbank"
)

// KnownSources lists every provider this build can fetch from.
var KnownSources = []Source{SourceFRED, SourceWorldBank}

// Validate reports whether the source names a known provider.
func (s Source) Validate() error {
	for _, known := range KnownSources {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown source %q", string(s))
}

// SeriesRequest captures the request-defining fields for one series fetch.
// These fields, in order, determine the cache key.
type SeriesRequest struct {
	Source    Source `json:"source"`
	SeriesID  string `json:"series_id"`
	Geography string `json:"geography,omitempty"`
	StartDate string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate   string `json:"end_date,omitempty"`   // YYYY-MM-DD
	Variant   string `json:"variant,omitempty"`    // provider transform, e.g. "pc1"
}

// Normalize lowercases and trims the fields that providers treat
// case-insensitively so equivalent requests share a cache key.
func (r SeriesRequest) Normalize() SeriesRequest {
	r.Source = Source(strings.ToLower(strings.TrimSpace(string(r.Source))))
	r.SeriesID = strings.TrimSpace(r.SeriesID)
	r.Geography = strings.ToUpper(strings.TrimSpace(r.Geography))
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.EndDate = strings.TrimSpace(r.EndDate)
	r.Variant = strings.ToLower(strings.TrimSpace(r.Variant))
	return r
}

// Validate checks the request is complete enough to send upstream.
func (r SeriesRequest) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.SeriesID) == "" {
		return fmt.Errorf("series id is required")
	}
	for _, d := range []string{r.StartDate, r.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("date %q is not YYYY-MM-DD", d)
		}
	}
	return nil
}

// CanonicalFields returns the ordered fields that define request identity.
func (r SeriesRequest) CanonicalFields() []string {
	n := r.Normalize()
	return []string{n.SeriesID, n.Geography, n.StartDate, n.EndDate, n.Variant}
}

// Observation is a single dated value in a series. Missing marks dates the
// provider reported without a usable value.
type Observation struct {
	Date    string  `json:"date"`
	Value   float64 `json:"value"`
	Missing bool    `json:"missing,omitempty"`
}

// Series is the provider-agnostic tabular result. Its JSON encoding is what
// the cache persists, so cached payloads never depend on provider wire shapes.
type Series struct {
	SeriesID     string        `json:"series_id"`
	Source       Source        `json:"source"`
	Title        string        `json:"title,omitempty"`
	Geography    string        `json:"geography,omitempty"`
	Unit         string        `json:"unit,omitempty"`
	Frequency    string        `json:"frequency,omitempty"`
	Observations []Observation `json:"observations"`
}

// SearchHit is one entry in a provider search response.
type SearchHit struct {
	SeriesID  string `json:"series_id"`
	Title     string `json:"title"`
	Frequency string `json:"frequency,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// SearchResult is the provider-agnostic search payload.
type SearchResult struct {
	Query  string      `json:"query"`
	Source Source      `json:"source"`
	Hits   []SearchHit `json:"hits"`
}

// Provenance captures metadata about how a fetch was resolved.
type Provenance struct {
	FetchID        string     `json:"fetch_id"`
	Source         Source     `json:"source"`
	SeriesID       string     `json:"series_id,omitempty"`
	RequestedAt    time.Time  `json:"requested_at"`
	CompletedAt    time.Time  `json:"completed_at"`
	Attempts       int        `json:"attempts"`
	FromCache      bool       `json:"from_cache"`
	Stale          bool       `json:"stale,omitempty"`
	CacheExpiresAt *time.Time `json:"cache_expires_at,omitempty"`
	ToolVersion    string     `json:"tool_version"`
}

// SeriesReport pairs a series with how it was obtained.
type SeriesReport struct {
	Series     Series     `json:"series"`
	Provenance Provenance `json:"provenance"`
}

// SearchReport pairs a search result with how it was obtained.
type SearchReport struct {
	Result     SearchResult `json:"result"`
	Provenance Provenance   `json:"provenance"`
}
