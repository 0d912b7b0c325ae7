package handlers

import (
	"net/http"
	"strings"

	"github.com/econlens/econlens/internal/core/engine"
	"github.com/econlens/econlens/internal/core/store"
	apperrors "github.com/econlens/econlens/internal/errors"
	"github.com/econlens/econlens/internal/metrics"
)

// adminStore and adminLimiters are injected from the serve command.
var (
	adminStore    *store.Store
	adminLimiters *engine.LimiterSet
)

// SetStore wires the persistent store into the admin handlers.
func SetStore(s *store.Store) {
	adminStore = s
}

// SetLimiters wires the in-process limiter set into the admin handlers.
func SetLimiters(limiters *engine.LimiterSet) {
	adminLimiters = limiters
}

// CacheStatsHandler reports cache occupancy and freshness.
func CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if adminStore == nil {
		respondWithError(w, r, apperrors.NewInternalError("store not configured"))
		return
	}

	stats, err := adminStore.CacheStats(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "cache stats failed"))
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// CacheSweepHandler removes expired cache entries.
func CacheSweepHandler(w http.ResponseWriter, r *http.Request) {
	if adminStore == nil {
		respondWithError(w, r, apperrors.NewInternalError("store not configured"))
		return
	}

	removed, err := adminStore.SweepExpired(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "cache sweep failed"))
		return
	}
	metrics.RecordCacheSweep(removed)

	respondJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// CacheClearHandler removes all cache entries.
func CacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if adminStore == nil {
		respondWithError(w, r, apperrors.NewInternalError("store not configured"))
		return
	}

	deleted, err := adminStore.ClearCache(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "cache clear failed"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// cooldownQueryFromRequest builds a store query from source/prefix parameters;
// with neither present the query covers everything.
func cooldownQueryFromRequest(r *http.Request) store.CooldownQuery {
	query := store.CooldownQuery{
		Source: strings.TrimSpace(r.URL.Query().Get("source")),
		Prefix: strings.TrimSpace(r.URL.Query().Get("prefix")),
	}
	if query.Source == "" && query.Prefix == "" {
		query.All = true
	}
	return query
}

// CooldownListHandler lists persisted provider cooldowns.
func CooldownListHandler(w http.ResponseWriter, r *http.Request) {
	if adminStore == nil {
		respondWithError(w, r, apperrors.NewInternalError("store not configured"))
		return
	}

	query := cooldownQueryFromRequest(r)
	if err := query.Validate(); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid cooldown query"))
		return
	}

	cooldowns, err := adminStore.ListCooldowns(r.Context(), query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "cooldown list failed"))
		return
	}

	respondJSON(w, http.StatusOK, cooldowns)
}

// CooldownResetHandler clears persisted provider cooldowns.
func CooldownResetHandler(w http.ResponseWriter, r *http.Request) {
	if adminStore == nil {
		respondWithError(w, r, apperrors.NewInternalError("store not configured"))
		return
	}

	query := cooldownQueryFromRequest(r)
	if err := query.Validate(); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid cooldown query"))
		return
	}

	deleted, err := adminStore.ResetCooldowns(r.Context(), query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "cooldown reset failed"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// LimiterListHandler snapshots the in-process sliding windows.
func LimiterListHandler(w http.ResponseWriter, r *http.Request) {
	if adminLimiters == nil {
		respondWithError(w, r, apperrors.NewInternalError("limiters not configured"))
		return
	}

	respondJSON(w, http.StatusOK, adminLimiters.Snapshot())
}

// LimiterResetHandler empties one source's window, or all windows when no
// source is given.
func LimiterResetHandler(w http.ResponseWriter, r *http.Request) {
	if adminLimiters == nil {
		respondWithError(w, r, apperrors.NewInternalError("limiters not configured"))
		return
	}

	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		reset := adminLimiters.ResetAll()
		respondJSON(w, http.StatusOK, map[string]int{"reset": reset})
		return
	}

	if !adminLimiters.Reset(source) {
		respondWithError(w, r, apperrors.NewNotFoundError("unknown limiter source: "+source))
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"reset": 1})
}
