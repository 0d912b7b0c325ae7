package cmd

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/econlens/econlens/internal/config"
	"github.com/econlens/econlens/internal/core/engine"
	"github.com/econlens/econlens/internal/core/provider"
	"github.com/econlens/econlens/internal/core/store"
	"github.com/econlens/econlens/internal/metrics"
	"github.com/econlens/econlens/internal/observability"
)

// buildService wires the resilient fetch pipeline for CLI and server use:
// per-source limiters over the configured budgets, the retry policy, the
// persistent store, and one client per provider.
func buildService(cfg *config.Config, db *store.Store) *provider.Service {
	limiters := engine.NewLimiterSet(nil, cfg.RateLimitMargin)
	limiters.ApplyOverrides(cfg.RateLimits)

	retry := engine.DefaultRetryPolicy()
	if cfg.Fetch.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Fetch.MaxAttempts
	}
	if cfg.Fetch.InitialDelay > 0 {
		retry.InitialDelay = cfg.Fetch.InitialDelay
	}
	if cfg.Fetch.MaxDelay > 0 {
		retry.MaxDelay = cfg.Fetch.MaxDelay
	}
	if cfg.Fetch.BackoffFactor >= 1 {
		retry.BackoffFactor = cfg.Fetch.BackoffFactor
	}

	fetcher := &engine.Fetcher{
		Store:    db,
		Limiters: limiters,
		Retry:    retry,
		MaxWait:  cfg.Fetch.MaxWait,
		OnEvent:  observeFetchEvent,
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	registry := provider.NewRegistry(
		&provider.FREDClient{
			APIKey:      cfg.Providers.FRED.APIKey,
			BaseURL:     cfg.Providers.FRED.BaseURL,
			Client:      httpClient,
			ToolVersion: versionInfo.Version,
		},
		&provider.WorldBankClient{
			BaseURL:     cfg.Providers.WorldBank.BaseURL,
			Client:      httpClient,
			ToolVersion: versionInfo.Version,
		},
	)

	return &provider.Service{
		Registry:    registry,
		Fetcher:     fetcher,
		SeriesTTL:   cfg.Cache.SeriesTTL,
		SearchTTL:   cfg.Cache.SearchTTL,
		ToolVersion: versionInfo.Version,
	}
}

// observeFetchEvent forwards fetcher diagnostics to the CLI logger and the
// telemetry counters. The fetch outcome never depends on this observer.
func observeFetchEvent(e engine.Event) {
	metrics.RecordFetchEvent(e)

	logger := observability.CLILogger
	if logger == nil {
		return
	}

	fields := []zap.Field{zap.String("source", e.Source)}
	if e.Key != "" {
		fields = append(fields, zap.String("key", e.Key))
	}
	if e.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", e.Attempt))
	}
	if e.Wait > 0 {
		fields = append(fields, zap.Duration("wait", e.Wait))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	switch e.Kind {
	case engine.EventCacheHit:
		logger.Debug("Cache hit", fields...)
	case engine.EventFetched:
		logger.Debug("Fetched from provider", fields...)
	case engine.EventRetry:
		logger.Debug("Retrying provider call", fields...)
	case engine.EventWaitTimeout:
		logger.Warn("Rate limit wait timed out", fields...)
	case engine.EventStaleFallback:
		logger.Warn("Serving stale cached data", fields...)
	case engine.EventCacheError:
		logger.Warn("Cache unavailable, degrading to miss", fields...)
	}
}
