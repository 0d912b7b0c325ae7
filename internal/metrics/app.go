package metrics

import (
	"time"

	"github.com/econlens/econlens/internal/core/engine"
	"github.com/econlens/econlens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Fetch pipeline metrics
	FetchTotal        = "app_fetch_total"
	FetchRetriesTotal = "app_fetch_retries_total"
	FetchWaitDuration = "app_fetch_wait_duration_ms"
	CacheErrorsTotal  = "app_cache_errors_total"
	CacheSweptTotal   = "app_cache_swept_total"

	// Operations metrics
	OperationsTotal       = "app_operations_total"
	OperationsErrorsTotal = "app_operations_errors_total"

	// Connection metrics
	ActiveConnections = "app_active_connections"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordFetchEvent folds a fetcher diagnostic event into the telemetry
// counters. Outcome events (cache hit, fetched, stale fallback, timeout)
// land in FetchTotal labeled by result; retries and cache faults get their
// own counters so throttling trends stay visible separately.
func RecordFetchEvent(e engine.Event) {
	if observability.TelemetrySystem == nil {
		return
	}

	switch e.Kind {
	case engine.EventCacheHit:
		_ = observability.TelemetrySystem.Counter(
			FetchTotal, 1,
			map[string]string{"source": e.Source, "result": "cache_hit"},
		)
	case engine.EventFetched:
		_ = observability.TelemetrySystem.Counter(
			FetchTotal, 1,
			map[string]string{"source": e.Source, "result": "fetched"},
		)
	case engine.EventStaleFallback:
		_ = observability.TelemetrySystem.Counter(
			FetchTotal, 1,
			map[string]string{"source": e.Source, "result": "stale_fallback"},
		)
	case engine.EventWaitTimeout:
		_ = observability.TelemetrySystem.Counter(
			FetchTotal, 1,
			map[string]string{"source": e.Source, "result": "wait_timeout"},
		)
	case engine.EventRetry:
		_ = observability.TelemetrySystem.Counter(
			FetchRetriesTotal, 1,
			map[string]string{"source": e.Source},
		)
		_ = observability.TelemetrySystem.Histogram(
			FetchWaitDuration, e.Wait,
			map[string]string{"source": e.Source},
		)
	case engine.EventCacheError:
		_ = observability.TelemetrySystem.Counter(
			CacheErrorsTotal, 1,
			map[string]string{"source": e.Source},
		)
	}
}

// RecordCacheSweep records how many expired cache rows a sweep removed.
func RecordCacheSweep(removed int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CacheSweptTotal, float64(removed), nil)
	}
}

// RecordOperation records an application operation with status
func RecordOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			OperationsTotal,
			1,
			map[string]string{
				"operation": operation,
				"status":    status,
			},
		)
	}
}

// RecordOperationError records an application operation error
func RecordOperationError(operation string, errorType string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			OperationsErrorsTotal,
			1,
			map[string]string{
				"operation":  operation,
				"error_type": errorType,
			},
		)
	}
}

// SetActiveConnections sets the current number of active connections
func SetActiveConnections(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ActiveConnections,
			float64(count),
			nil,
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
