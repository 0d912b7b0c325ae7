package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/econlens/econlens/internal/core"
)

// TableFormatter renders reports as ASCII tables.
type TableFormatter struct{}

// FormatSeries renders observations as a two-column table with a heading and
// a provenance footer.
func (f *TableFormatter) FormatSeries(report *core.SeriesReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(seriesHeading(report))
	if detail := seriesDetail(report.Series); detail != "" {
		sb.WriteString(" [" + detail + "]")
	}
	sb.WriteString("\n")

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// Keep footer text exactly as written; StyleRounded uppercases it by default.
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Date", "Value"})
	for _, o := range report.Series.Observations {
		t.AppendRow(table.Row{o.Date, observationValue(o)})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d observations", len(report.Series.Observations)),
		provenanceLabel(report.Provenance),
	})

	sb.WriteString(t.Render())
	return sb.String(), nil
}

// FormatSearch renders search hits as a table.
func (f *TableFormatter) FormatSearch(report *core.SearchReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s search: %q\n", report.Result.Source, report.Result.Query))

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Series ID", "Title", "Frequency", "Unit"})
	for _, hit := range report.Result.Hits {
		t.AppendRow(table.Row{hit.SeriesID, hit.Title, hit.Frequency, hit.Unit})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d hits", len(report.Result.Hits)),
		provenanceLabel(report.Provenance),
		"",
		"",
	})

	sb.WriteString(t.Render())
	return sb.String(), nil
}
