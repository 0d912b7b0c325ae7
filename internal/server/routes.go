package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/econlens/econlens/internal/appid"
	apperrors "github.com/econlens/econlens/internal/errors"
	"github.com/econlens/econlens/internal/observability"
	"github.com/econlens/econlens/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Standard health endpoints per Workhorse §9
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	// Fetch pipeline endpoints
	s.router.Get("/v0/series/{source}/{id}", handlers.SeriesHandler)
	s.router.Get("/v0/search/{source}", handlers.SearchHandler)

	// Admin endpoints (optional, require ECONLENS_ADMIN_TOKEN)
	s.registerAdminEndpoints()
}

// registerAdminEndpoints optionally registers the token-gated admin surface:
// the signal endpoint plus cache, cooldown, and limiter maintenance.
func (s *Server) registerAdminEndpoints() {
	// Get admin token from environment (identity-aware)
	ctx := context.Background()
	identity, _ := appid.Get(ctx)
	envPrefix := "WORKHORSE_"
	if identity != nil && identity.EnvPrefix != "" {
		envPrefix = identity.EnvPrefix
	}

	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no " + envPrefix + "ADMIN_TOKEN set)")
		}
		return
	}

	// Create HTTP signal handler with bearer token auth and rate limiting
	signalHandler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Post("/signal", signalHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(requireBearerToken(adminToken))

			r.Get("/cache/stats", handlers.CacheStatsHandler)
			r.Post("/cache/sweep", handlers.CacheSweepHandler)
			r.Post("/cache/clear", handlers.CacheClearHandler)
			r.Get("/cooldowns", handlers.CooldownListHandler)
			r.Post("/cooldowns/reset", handlers.CooldownResetHandler)
			r.Get("/limiters", handlers.LimiterListHandler)
			r.Post("/limiters/reset", handlers.LimiterResetHandler)
		})
	})

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.String("path", "/admin"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5 (signal endpoint)"))
		logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
	}
}

// requireBearerToken guards admin routes with a constant-time token check.
func requireBearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			provided, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				HandleError(w, r, apperrors.NewUnauthorizedError("Missing or invalid admin token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
