package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/econlens/econlens/internal/core"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadPullManifest(t *testing.T) {
	path := writeManifest(t, `
series:
  - source: fred
    id: GDPC1
    start: "2020-01-01"
  - source: worldbank
    id: NY.GDP.MKTP.CD
    geo: us
`)

	requests, err := readPullManifest(path)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, core.SourceFRED, requests[0].Source)
	assert.Equal(t, "GDPC1", requests[0].SeriesID)
	assert.Equal(t, "2020-01-01", requests[0].StartDate)

	// Normalize uppercases geography so both providers accept it.
	assert.Equal(t, core.SourceWorldBank, requests[1].Source)
	assert.Equal(t, "US", requests[1].Geography)
}

func TestReadPullManifestRejectsInvalidEntry(t *testing.T) {
	path := writeManifest(t, `
series:
  - source: fred
    id: ""
`)

	_, err := readPullManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 0")
}

func TestReadPullManifestRejectsMalformedYAML(t *testing.T) {
	path := writeManifest(t, "series: [not, a, mapping")

	_, err := readPullManifest(path)
	require.Error(t, err)
}
