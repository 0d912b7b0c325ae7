package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/econlens/econlens/internal/core"
)

func TestCacheKeyDeterministic(t *testing.T) {
	a := CacheKey("fred", "GDPC1", "US", "2020-01-01", "2024-12-31", "")
	b := CacheKey("fred", "GDPC1", "US", "2020-01-01", "2024-12-31", "")

	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestCacheKeySensitivity(t *testing.T) {
	base := CacheKey("fred", "GDPC1", "US", "2020-01-01", "2024-12-31", "")

	variants := []string{
		CacheKey("worldbank", "GDPC1", "US", "2020-01-01", "2024-12-31", ""),
		CacheKey("fred", "GDPC2", "US", "2020-01-01", "2024-12-31", ""),
		CacheKey("fred", "GDPC1", "DE", "2020-01-01", "2024-12-31", ""),
		CacheKey("fred", "GDPC1", "US", "2020-01-02", "2024-12-31", ""),
		// End date shifted by one day.
		CacheKey("fred", "GDPC1", "US", "2020-01-01", "2025-01-01", ""),
		CacheKey("fred", "GDPC1", "US", "2020-01-01", "2024-12-31", "pc1"),
	}

	seen := map[string]bool{base: true}
	for i, key := range variants {
		require.False(t, seen[key], "variant %d collided", i)
		seen[key] = true
	}
}

func TestCacheKeyPreservesFieldPositions(t *testing.T) {
	require.NotEqual(t,
		CacheKey("fred", "GDPC1", "", "2020-01-01"),
		CacheKey("fred", "GDPC1", "2020-01-01", ""),
	)
}

func TestCacheKeyFromCanonicalFields(t *testing.T) {
	req := core.SeriesRequest{
		Source:    core.SourceFRED,
		SeriesID:  "GDPC1",
		Geography: "us",
		StartDate: "2020-01-01",
	}
	shouted := req
	shouted.Geography = "US "

	require.Equal(t,
		CacheKey(string(req.Source), req.CanonicalFields()...),
		CacheKey(string(shouted.Source), shouted.CanonicalFields()...),
		"normalization must make equivalent requests share a key",
	)
}
