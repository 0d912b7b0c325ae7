package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/econlens/econlens/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders fetch and search reports.
type Formatter interface {
	FormatSeries(report *core.SeriesReport) (string, error)
	FormatSearch(report *core.SearchReport) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// FormatSeriesList renders multiple series reports using the requested format.
func FormatSeriesList(format Format, reports []*core.SeriesReport) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	formatter := NewFormatter(format)
	rendered := make([]string, 0, len(reports))
	for _, report := range reports {
		if report == nil {
			continue
		}
		value, err := formatter.FormatSeries(report)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		rendered = append(rendered, value)
	}

	return strings.Join(rendered, "\n\n"), nil
}

// seriesHeading builds the one-line description shown above a series table.
func seriesHeading(report *core.SeriesReport) string {
	s := report.Series
	parts := []string{fmt.Sprintf("%s/%s", s.Source, s.SeriesID)}
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	if s.Geography != "" {
		parts = append(parts, s.Geography)
	}
	return strings.Join(parts, " - ")
}

// seriesDetail summarizes unit and frequency when the provider reported them.
func seriesDetail(s core.Series) string {
	details := make([]string, 0, 2)
	if s.Unit != "" {
		details = append(details, s.Unit)
	}
	if s.Frequency != "" {
		details = append(details, s.Frequency)
	}
	return strings.Join(details, ", ")
}

// observationValue renders one observation cell; provider gaps show as ".".
func observationValue(o core.Observation) string {
	if o.Missing {
		return "."
	}
	return strconv.FormatFloat(o.Value, 'f', -1, 64)
}

// provenanceLabel describes how the data was obtained.
func provenanceLabel(p core.Provenance) string {
	switch {
	case p.Stale:
		label := "stale cache"
		if p.CacheExpiresAt != nil {
			label += fmt.Sprintf(" (expired %s)", p.CacheExpiresAt.UTC().Format(time.RFC3339))
		}
		return label
	case p.FromCache:
		return "cache"
	case p.Attempts > 1:
		return fmt.Sprintf("live (%d attempts)", p.Attempts)
	default:
		return "live"
	}
}
