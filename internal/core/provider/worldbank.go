package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/engine"
)

const (
	worldBankSource         = "worldbank"
	worldBankDefaultBaseURL = "https://api.worldbank.org/v2"

	// worldBankEpoch is the first year the indicators API covers.
	worldBankEpoch = 1960

	// worldBankPageSize covers 60+ years of annual observations in one page.
	worldBankPageSize = 1000

	// worldBankCatalogPageSize is the slice of the indicator catalog scanned
	// per search.
	worldBankCatalogPageSize = 500

	// worldBankDefaultGeography aggregates across all reporting countries.
	worldBankDefaultGeography = "all"
)

// WorldBankClient fetches indicator series from the World Bank API.
type WorldBankClient struct {
	Client      *http.Client
	BaseURL     string
	ToolVersion string
	Clock       func() time.Time
}

// Source returns the logical source id.
func (c *WorldBankClient) Source() string {
	return worldBankSource
}

type worldBankRow struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
	ObsStatus   string   `json:"obs_status"`
}

// Series fetches one indicator for one geography. Geography defaults to the
// "all" aggregate when the request leaves it empty.
func (c *WorldBankClient) Series(ctx context.Context, req core.SeriesRequest) (*core.Series, error) {
	if c == nil {
		return nil, errors.New("worldbank client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req = req.Normalize()
	if req.SeriesID == "" {
		return nil, errors.New("indicator id is required")
	}

	geo := strings.ToLower(req.Geography)
	if geo == "" {
		geo = worldBankDefaultGeography
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("per_page", strconv.Itoa(worldBankPageSize))
	if dateRange := c.dateRange(req); dateRange != "" {
		params.Set("date", dateRange)
	}

	endpoint := c.endpoint("/country/"+url.PathEscape(geo)+"/indicator/"+url.PathEscape(req.SeriesID), params)

	var pages []json.RawMessage
	if err := getJSON(ctx, c.Client, c.userAgent(), "worldbank.series", endpoint, &pages); err != nil {
		return nil, err
	}

	var rows []worldBankRow
	if err := worldBankPayload("worldbank.series", pages, &rows); err != nil {
		return nil, err
	}

	series := &core.Series{
		SeriesID:     req.SeriesID,
		Source:       core.SourceWorldBank,
		Geography:    req.Geography,
		Observations: make([]core.Observation, 0, len(rows)),
	}

	// Rows arrive newest-first; emit chronological order.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		date, frequency := worldBankDate(row.Date)
		if series.Title == "" {
			series.Title = row.Indicator.Value
		}
		if series.Unit == "" {
			series.Unit = row.Unit
		}
		if series.Frequency == "" {
			series.Frequency = frequency
		}
		if row.Value == nil {
			series.Observations = append(series.Observations, core.Observation{Date: date, Missing: true})
			continue
		}
		series.Observations = append(series.Observations, core.Observation{Date: date, Value: *row.Value})
	}
	return series, nil
}

// Search scans the indicator catalog for matches. The v2 API has no
// server-side text filter on /indicator, so one catalog page is matched
// locally against id and name.
func (c *WorldBankClient) Search(ctx context.Context, query string) (*core.SearchResult, error) {
	if c == nil {
		return nil, errors.New("worldbank client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	text := strings.TrimSpace(query)
	if text == "" {
		return nil, errors.New("search query is required")
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("per_page", strconv.Itoa(worldBankCatalogPageSize))

	var pages []json.RawMessage
	if err := getJSON(ctx, c.Client, c.userAgent(), "worldbank.search", c.endpoint("/indicator", params), &pages); err != nil {
		return nil, err
	}

	var rows []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Unit string `json:"unit"`
	}
	if err := worldBankPayload("worldbank.search", pages, &rows); err != nil {
		return nil, err
	}

	match := strings.ToLower(text)
	result := &core.SearchResult{Query: text, Source: core.SourceWorldBank}
	for _, row := range rows {
		if len(result.Hits) == searchHitLimit {
			break
		}
		if !strings.Contains(strings.ToLower(row.ID), match) && !strings.Contains(strings.ToLower(row.Name), match) {
			continue
		}
		result.Hits = append(result.Hits, core.SearchHit{SeriesID: row.ID, Title: row.Name, Unit: row.Unit})
	}
	return result, nil
}

// worldBankPayload splits the API's bare [metadata, rows] array shape and
// decodes the rows element. Error responses come back as a one-element array
// whose metadata carries a message list.
func worldBankPayload(op string, pages []json.RawMessage, rows any) error {
	if len(pages) == 0 {
		return engine.Fatalf(op, "empty response")
	}

	if len(pages) < 2 {
		var meta struct {
			Message []struct {
				ID    string `json:"id"`
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"message"`
		}
		if err := json.Unmarshal(pages[0], &meta); err == nil && len(meta.Message) > 0 {
			return engine.Fatalf(op, "%s: %s", meta.Message[0].Key, meta.Message[0].Value)
		}
		return engine.Fatalf(op, "response missing data rows")
	}

	if err := json.Unmarshal(pages[1], rows); err != nil {
		return engine.Fatal(op, fmt.Errorf("decode data rows: %w", err))
	}
	return nil
}

// worldBankDate maps the API's period labels onto YYYY-MM-DD period starts.
// Annual rows read "2020", quarterly "2020Q1", monthly "2020M07". Unrecognized
// labels pass through untouched.
func worldBankDate(raw string) (date string, frequency string) {
	raw = strings.TrimSpace(raw)
	switch {
	case len(raw) == 4:
		return raw + "-01-01", "Annual"
	case len(raw) == 6 && (raw[4] == 'Q' || raw[4] == 'q'):
		quarter := int(raw[5] - '1')
		if quarter < 0 || quarter > 3 {
			return raw, ""
		}
		return fmt.Sprintf("%s-%02d-01", raw[:4], quarter*3+1), "Quarterly"
	case len(raw) == 7 && (raw[4] == 'M' || raw[4] == 'm'):
		return raw[:4] + "-" + raw[5:] + "-01", "Monthly"
	default:
		return raw, ""
	}
}

// dateRange derives the API's year-range filter from the request dates.
// Coverage starts in 1960; an open end defaults to the current year.
func (c *WorldBankClient) dateRange(req core.SeriesRequest) string {
	start := yearOf(req.StartDate)
	end := yearOf(req.EndDate)
	if start == "" && end == "" {
		return ""
	}
	if start == "" {
		start = strconv.Itoa(worldBankEpoch)
	}
	if end == "" {
		end = strconv.Itoa(c.now().Year())
	}
	return start + ":" + end
}

func yearOf(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

func (c *WorldBankClient) endpoint(path string, params url.Values) string {
	base := c.baseURL()
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = params.Encode()
	return u.String()
}

func (c *WorldBankClient) baseURL() *url.URL {
	if c != nil && c.BaseURL != "" {
		if parsed, err := url.Parse(c.BaseURL); err == nil {
			return parsed
		}
	}
	parsed, _ := url.Parse(worldBankDefaultBaseURL)
	return parsed
}

func (c *WorldBankClient) userAgent() string {
	version := "unknown"
	if c != nil && c.ToolVersion != "" {
		version = c.ToolVersion
	}
	return "econlens/" + version
}

func (c *WorldBankClient) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
