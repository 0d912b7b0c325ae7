package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/engine"
)

func TestFREDSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series/observations", r.URL.Path)
		require.Equal(t, "UNRATE", r.URL.Query().Get("series_id"))
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		require.Equal(t, "json", r.URL.Query().Get("file_type"))
		require.Equal(t, "2020-01-01", r.URL.Query().Get("observation_start"))
		require.Equal(t, "2020-03-01", r.URL.Query().Get("observation_end"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"units": "lin",
			"observations": [
				{"date": "2020-01-01", "value": "3.5"},
				{"date": "2020-02-01", "value": "."},
				{"date": "2020-03-01", "value": "4.4"}
			]
		}`))
	}))
	defer server.Close()

	client := &FREDClient{
		Client:  server.Client(),
		BaseURL: server.URL,
		APIKey:  "test-key",
	}

	series, err := client.Series(context.Background(), core.SeriesRequest{
		Source:    core.SourceFRED,
		SeriesID:  "unrate",
		StartDate: "2020-01-01",
		EndDate:   "2020-03-01",
	})
	require.NoError(t, err)
	require.Equal(t, "UNRATE", series.SeriesID)
	require.Equal(t, core.SourceFRED, series.Source)
	require.Len(t, series.Observations, 3)
	require.Equal(t, 3.5, series.Observations[0].Value)
	require.True(t, series.Observations[1].Missing)
	require.Equal(t, "2020-02-01", series.Observations[1].Date)
	require.Equal(t, 4.4, series.Observations[2].Value)
}

func TestFREDSeriesVariantMapsToUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "pc1", r.URL.Query().Get("units"))
		_, _ = w.Write([]byte(`{"observations": []}`))
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL, APIKey: "test-key"}

	series, err := client.Series(context.Background(), core.SeriesRequest{
		Source:   core.SourceFRED,
		SeriesID: "CPIAUCSL",
		Variant:  "PC1",
	})
	require.NoError(t, err)
	require.Empty(t, series.Observations)
}

func TestFREDSeriesRequiresAPIKey(t *testing.T) {
	requestMade := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestMade = true
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL}

	_, err := client.Series(context.Background(), core.SeriesRequest{Source: core.SourceFRED, SeriesID: "UNRATE"})
	require.Error(t, err)
	require.False(t, requestMade)
	require.Equal(t, engine.CategoryFatal, engine.Classify(err))
	require.Contains(t, err.Error(), "api key")
}

func TestFREDSeriesRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL, APIKey: "test-key"}

	_, err := client.Series(context.Background(), core.SeriesRequest{Source: core.SourceFRED, SeriesID: "UNRATE"})
	require.Error(t, err)
	require.Equal(t, engine.CategoryThrottled, engine.Classify(err))
	require.Equal(t, 7*time.Second, engine.RetryAfterOf(err))
}

func TestFREDSeriesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL, APIKey: "test-key"}

	_, err := client.Series(context.Background(), core.SeriesRequest{Source: core.SourceFRED, SeriesID: "UNRATE"})
	require.Error(t, err)
	require.Equal(t, engine.CategoryTransient, engine.Classify(err))
}

func TestFREDSeriesBadRequestIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":400,"error_message":"Bad Request. The series does not exist."}`))
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL, APIKey: "test-key"}

	_, err := client.Series(context.Background(), core.SeriesRequest{Source: core.SourceFRED, SeriesID: "NOPE"})
	require.Error(t, err)
	require.Equal(t, engine.CategoryFatal, engine.Classify(err))
	require.Contains(t, err.Error(), "does not exist")
}

func TestFREDSeriesUnparseableValueIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"observations": [{"date": "2020-01-01", "value": "garbage"}]}`))
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL, APIKey: "test-key"}

	_, err := client.Series(context.Background(), core.SeriesRequest{Source: core.SourceFRED, SeriesID: "UNRATE"})
	require.Error(t, err)
	require.Equal(t, engine.CategoryFatal, engine.Classify(err))
}

func TestFREDSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series/search", r.URL.Path)
		require.Equal(t, "unemployment", r.URL.Query().Get("search_text"))

		_, _ = w.Write([]byte(`{
			"seriess": [
				{"id": "UNRATE", "title": "Unemployment Rate", "frequency": "Monthly", "units": "Percent"},
				{"id": "U6RATE", "title": "Total Unemployed", "frequency": "Monthly", "units": "Percent"}
			]
		}`))
	}))
	defer server.Close()

	client := &FREDClient{Client: server.Client(), BaseURL: server.URL, APIKey: "test-key"}

	result, err := client.Search(context.Background(), "unemployment")
	require.NoError(t, err)
	require.Equal(t, core.SourceFRED, result.Source)
	require.Len(t, result.Hits, 2)
	require.Equal(t, "UNRATE", result.Hits[0].SeriesID)
	require.Equal(t, "Unemployment Rate", result.Hits[0].Title)
	require.Equal(t, "Percent", result.Hits[0].Unit)
}

func TestFREDUserAgentDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "econlens/unknown", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"observations": []}`))
	}))
	defer server.Close()

	client := &FREDClient{
		Client:  server.Client(),
		BaseURL: server.URL,
		APIKey:  "test-key",
		// ToolVersion intentionally not set
	}

	_, err := client.Series(context.Background(), core.SeriesRequest{Source: core.SourceFRED, SeriesID: "UNRATE"})
	require.NoError(t, err)
}

func TestFREDSource(t *testing.T) {
	client := &FREDClient{}
	require.Equal(t, "fred", client.Source())
}
