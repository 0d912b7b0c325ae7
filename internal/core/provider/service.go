package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/engine"
)

const (
	defaultSeriesTTL = 24 * time.Hour
	defaultSearchTTL = time.Hour
)

// Service runs provider calls through the resilient fetch pipeline and
// assembles the reports the CLI and server render.
type Service struct {
	Registry    *Registry
	Fetcher     *engine.Fetcher
	SeriesTTL   time.Duration
	SearchTTL   time.Duration
	ToolVersion string
	Clock       func() time.Time
}

// FetchOptions tunes one service call.
type FetchOptions struct {
	TTL     time.Duration // overrides the configured TTL when > 0
	NoCache bool          // bypass the cache entirely
}

// FetchSeries resolves one series request through cache, rate limiting,
// retries, and stale fallback.
func (s *Service) FetchSeries(ctx context.Context, req core.SeriesRequest, opts FetchOptions) (*core.SeriesReport, error) {
	if s == nil || s.Fetcher == nil {
		return nil, errors.New("fetch service is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	client, err := s.Registry.For(string(req.Source))
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{"kind": "series"}
	if req.Geography != "" {
		metadata["geography"] = req.Geography
	}

	requestedAt := s.now()
	res, err := s.Fetcher.Fetch(ctx, engine.FetchRequest{
		Source:   string(req.Source),
		Key:      engine.CacheKey(string(req.Source), req.CanonicalFields()...),
		SeriesID: req.SeriesID,
		TTL:      pickTTL(opts.TTL, s.SeriesTTL, defaultSeriesTTL),
		NoCache:  opts.NoCache,
		Metadata: metadata,
		Call: func(ctx context.Context) ([]byte, error) {
			series, err := client.Series(ctx, req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(series)
		},
	})
	if err != nil {
		return nil, err
	}

	var series core.Series
	if err := json.Unmarshal(res.Payload, &series); err != nil {
		return nil, fmt.Errorf("decode cached series payload: %w", err)
	}

	return &core.SeriesReport{
		Series:     series,
		Provenance: s.provenance(req.Source, req.SeriesID, requestedAt, res),
	}, nil
}

// Search resolves a catalog query through the same pipeline with the search
// TTL. Queries are lowercased so equivalent searches share a cache entry.
func (s *Service) Search(ctx context.Context, source, query string, opts FetchOptions) (*core.SearchReport, error) {
	if s == nil || s.Fetcher == nil {
		return nil, errors.New("fetch service is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	src := strings.ToLower(strings.TrimSpace(source))
	text := strings.ToLower(strings.TrimSpace(query))
	if text == "" {
		return nil, errors.New("search query is required")
	}

	client, err := s.Registry.For(src)
	if err != nil {
		return nil, err
	}

	requestedAt := s.now()
	res, err := s.Fetcher.Fetch(ctx, engine.FetchRequest{
		Source:   src,
		Key:      engine.CacheKey(src, "search", text),
		TTL:      pickTTL(opts.TTL, s.SearchTTL, defaultSearchTTL),
		NoCache:  opts.NoCache,
		Metadata: map[string]string{"kind": "search"},
		Call: func(ctx context.Context) ([]byte, error) {
			result, err := client.Search(ctx, text)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		},
	})
	if err != nil {
		return nil, err
	}

	var result core.SearchResult
	if err := json.Unmarshal(res.Payload, &result); err != nil {
		return nil, fmt.Errorf("decode cached search payload: %w", err)
	}

	return &core.SearchReport{
		Result:     result,
		Provenance: s.provenance(core.Source(src), "", requestedAt, res),
	}, nil
}

func (s *Service) provenance(source core.Source, seriesID string, requestedAt time.Time, res *engine.FetchResult) core.Provenance {
	prov := core.Provenance{
		FetchID:     uuid.New().String(),
		Source:      source,
		SeriesID:    seriesID,
		RequestedAt: requestedAt,
		CompletedAt: s.now(),
		Attempts:    res.Attempts,
		FromCache:   res.FromCache,
		Stale:       res.Stale,
		ToolVersion: s.ToolVersion,
	}
	if !res.ExpiresAt.IsZero() {
		expires := res.ExpiresAt
		prov.CacheExpiresAt = &expires
	}
	return prov
}

func (s *Service) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func pickTTL(override, configured, fallback time.Duration) time.Duration {
	switch {
	case override > 0:
		return override
	case configured > 0:
		return configured
	default:
		return fallback
	}
}
