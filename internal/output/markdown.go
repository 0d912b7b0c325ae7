package output

import (
	"fmt"
	"strings"

	"github.com/econlens/econlens/internal/core"
)

// MarkdownFormatter renders reports as markdown tables.
type MarkdownFormatter struct{}

// FormatSeries renders a series report as Markdown.
func (f *MarkdownFormatter) FormatSeries(report *core.SeriesReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(seriesHeading(report))))
	if detail := seriesDetail(report.Series); detail != "" {
		sb.WriteString(escapeMarkdownCell(detail) + "\n\n")
	}

	sb.WriteString("| Date | Value |\n")
	sb.WriteString("|------|-------|\n")
	for _, o := range report.Series.Observations {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n",
			escapeMarkdownCell(o.Date),
			escapeMarkdownCell(observationValue(o)),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Source**: %s, %d observations\n",
		escapeMarkdownCell(provenanceLabel(report.Provenance)),
		len(report.Series.Observations)))
	return sb.String(), nil
}

// FormatSearch renders a search report as Markdown.
func (f *MarkdownFormatter) FormatSearch(report *core.SearchReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s search: %s\n\n",
		escapeMarkdownCell(string(report.Result.Source)),
		escapeMarkdownCell(report.Result.Query)))
	sb.WriteString("| Series ID | Title | Frequency | Unit |\n")
	sb.WriteString("|-----------|-------|-----------|------|\n")
	for _, hit := range report.Result.Hits {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(hit.SeriesID),
			escapeMarkdownCell(hit.Title),
			escapeMarkdownCell(hit.Frequency),
			escapeMarkdownCell(hit.Unit),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Source**: %s, %d hits\n",
		escapeMarkdownCell(provenanceLabel(report.Provenance)),
		len(report.Result.Hits)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
