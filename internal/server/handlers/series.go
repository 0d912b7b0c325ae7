package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/engine"
	"github.com/econlens/econlens/internal/core/provider"
	apperrors "github.com/econlens/econlens/internal/errors"
)

// fetchService is injected from the serve command via SetFetchService.
var fetchService *provider.Service

// SetFetchService wires the shared fetch pipeline into the HTTP handlers.
func SetFetchService(service *provider.Service) {
	fetchService = service
}

// SeriesHandler resolves GET /v0/series/{source}/{id} through the shared
// cache, rate-limit, and retry pipeline.
func SeriesHandler(w http.ResponseWriter, r *http.Request) {
	if fetchService == nil {
		respondWithError(w, r, apperrors.NewInternalError("fetch service not configured"))
		return
	}

	query := r.URL.Query()
	req := core.SeriesRequest{
		Source:    core.Source(chi.URLParam(r, "source")),
		SeriesID:  chi.URLParam(r, "id"),
		Geography: query.Get("geo"),
		StartDate: query.Get("start"),
		EndDate:   query.Get("end"),
		Variant:   query.Get("variant"),
	}.Normalize()
	if err := req.Validate(); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid series request"))
		return
	}

	opts, err := fetchOptionsFromQuery(query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid fetch options"))
		return
	}

	report, err := fetchService.FetchSeries(r.Context(), req, opts)
	if err != nil {
		respondWithError(w, r, envelopeFromFetchError(r, err))
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// SearchHandler resolves GET /v0/search/{source}?q= against the provider's
// catalog, with the same caching semantics as series fetches.
func SearchHandler(w http.ResponseWriter, r *http.Request) {
	if fetchService == nil {
		respondWithError(w, r, apperrors.NewInternalError("fetch service not configured"))
		return
	}

	query := r.URL.Query()
	q := query.Get("q")
	if q == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("query parameter 'q' is required"))
		return
	}

	opts, err := fetchOptionsFromQuery(query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid fetch options"))
		return
	}

	report, err := fetchService.Search(r.Context(), chi.URLParam(r, "source"), q, opts)
	if err != nil {
		respondWithError(w, r, envelopeFromFetchError(r, err))
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// fetchOptionsFromQuery reads the optional ttl and no_cache parameters.
func fetchOptionsFromQuery(query map[string][]string) (provider.FetchOptions, error) {
	var opts provider.FetchOptions

	if values, ok := query["ttl"]; ok && len(values) > 0 && values[0] != "" {
		ttl, err := time.ParseDuration(values[0])
		if err != nil {
			return opts, err
		}
		opts.TTL = ttl
	}
	if values, ok := query["no_cache"]; ok && len(values) > 0 && values[0] != "" {
		noCache, err := strconv.ParseBool(values[0])
		if err != nil {
			return opts, err
		}
		opts.NoCache = noCache
	}

	return opts, nil
}

// envelopeFromFetchError maps pipeline failures onto API error codes: upstream
// throttling and exhausted wait budgets surface as RATE_LIMITED, transient
// upstream trouble as EXTERNAL_SERVICE_ERROR, and everything else as a bad
// request against the provider.
func envelopeFromFetchError(r *http.Request, err error) error {
	ctx := r.Context()

	if errors.Is(err, engine.ErrWaitTimeout) {
		return apperrors.WrapRateLimited(ctx, err, "rate limit wait budget exhausted")
	}

	switch engine.Classify(err) {
	case engine.CategoryThrottled:
		return apperrors.WrapRateLimited(ctx, err, "upstream provider is rate limiting requests")
	case engine.CategoryTransient:
		return apperrors.WrapExternalService(ctx, err, "upstream provider is unavailable")
	default:
		return apperrors.WrapInvalidInput(ctx, err, "provider rejected the request")
	}
}

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
