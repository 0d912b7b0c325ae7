package output

import (
	"encoding/json"

	"github.com/econlens/econlens/internal/core"
)

// JSONFormatter renders reports as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// FormatSeries renders a series report as JSON.
func (f *JSONFormatter) FormatSeries(report *core.SeriesReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatSearch renders a search report as JSON.
func (f *JSONFormatter) FormatSearch(report *core.SearchReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}
