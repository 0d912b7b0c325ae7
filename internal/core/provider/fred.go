package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/engine"
)

const (
	fredSource         = "fred"
	fredDefaultBaseURL = "https://api.stlouisfed.org/fred"

	// fredMissingValue is how FRED marks dates without a usable observation.
	fredMissingValue = "."
)

// FREDClient fetches series from the St. Louis Fed FRED API.
type FREDClient struct {
	Client      *http.Client
	BaseURL     string
	APIKey      string
	ToolVersion string
}

// Source returns the logical source id.
func (c *FREDClient) Source() string {
	return fredSource
}

// Series fetches observations for one series. The request's Variant maps to
// FRED's units transform (e.g. "pc1" for percent change from a year ago).
func (c *FREDClient) Series(ctx context.Context, req core.SeriesRequest) (*core.Series, error) {
	if c == nil {
		return nil, errors.New("fred client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req = req.Normalize()
	seriesID := strings.ToUpper(req.SeriesID)
	if seriesID == "" {
		return nil, errors.New("series id is required")
	}

	apiKey, err := c.apiKey("fred.series")
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", apiKey)
	params.Set("file_type", "json")
	if req.StartDate != "" {
		params.Set("observation_start", req.StartDate)
	}
	if req.EndDate != "" {
		params.Set("observation_end", req.EndDate)
	}
	if req.Variant != "" {
		params.Set("units", req.Variant)
	}

	var payload struct {
		Units        string `json:"units"`
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := getJSON(ctx, c.Client, c.userAgent(), "fred.series", c.endpoint("/series/observations", params), &payload); err != nil {
		return nil, err
	}

	// The observations endpoint returns no catalog metadata, so Title stays
	// empty; search carries titles instead.
	series := &core.Series{
		SeriesID:     seriesID,
		Source:       core.SourceFRED,
		Geography:    req.Geography,
		Unit:         payload.Units,
		Observations: make([]core.Observation, 0, len(payload.Observations)),
	}
	for _, obs := range payload.Observations {
		value := strings.TrimSpace(obs.Value)
		if value == "" || value == fredMissingValue {
			series.Observations = append(series.Observations, core.Observation{Date: obs.Date, Missing: true})
			continue
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, engine.Fatalf("fred.series", "observation %s: unparseable value %q", obs.Date, obs.Value)
		}
		series.Observations = append(series.Observations, core.Observation{Date: obs.Date, Value: parsed})
	}
	return series, nil
}

// Search queries the FRED series catalog.
func (c *FREDClient) Search(ctx context.Context, query string) (*core.SearchResult, error) {
	if c == nil {
		return nil, errors.New("fred client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	text := strings.TrimSpace(query)
	if text == "" {
		return nil, errors.New("search query is required")
	}

	apiKey, err := c.apiKey("fred.search")
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search_text", text)
	params.Set("api_key", apiKey)
	params.Set("file_type", "json")
	params.Set("limit", strconv.Itoa(searchHitLimit))

	// The catalog list really is keyed "seriess".
	var payload struct {
		Seriess []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Frequency string `json:"frequency"`
			Units     string `json:"units"`
		} `json:"seriess"`
	}
	if err := getJSON(ctx, c.Client, c.userAgent(), "fred.search", c.endpoint("/series/search", params), &payload); err != nil {
		return nil, err
	}

	result := &core.SearchResult{
		Query:  text,
		Source: core.SourceFRED,
		Hits:   make([]core.SearchHit, 0, len(payload.Seriess)),
	}
	for _, hit := range payload.Seriess {
		result.Hits = append(result.Hits, core.SearchHit{
			SeriesID:  hit.ID,
			Title:     hit.Title,
			Frequency: hit.Frequency,
			Unit:      hit.Units,
		})
	}
	return result, nil
}

// apiKey returns the configured key, or a fatal error so a missing key is
// never retried.
func (c *FREDClient) apiKey(op string) (string, error) {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return "", engine.Fatal(op, errors.New("api key is required, set providers.fred.api_key or FRED_API_KEY"))
	}
	return key, nil
}

func (c *FREDClient) endpoint(path string, params url.Values) string {
	base := c.baseURL()
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = params.Encode()
	return u.String()
}

func (c *FREDClient) baseURL() *url.URL {
	if c != nil && c.BaseURL != "" {
		if parsed, err := url.Parse(c.BaseURL); err == nil {
			return parsed
		}
	}
	parsed, _ := url.Parse(fredDefaultBaseURL)
	return parsed
}

func (c *FREDClient) userAgent() string {
	version := "unknown"
	if c != nil && c.ToolVersion != "" {
		version = c.ToolVersion
	}
	return "econlens/" + version
}
