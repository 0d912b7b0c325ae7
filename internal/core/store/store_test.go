package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/econlens/econlens/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./econlens.db"}

		dsn, path, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./econlens.db", dsn)
		require.Equal(t, "./econlens.db", path)
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, _, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, path, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
		require.Empty(t, path)
	})

	t.Run("PlainPathGetsFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: t.TempDir() + "/data/econlens.db"}

		dsn, path, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Contains(t, dsn, "file:")
		require.Contains(t, path, "econlens.db")
	})
}

func TestCooldownQueryValidate(t *testing.T) {
	require.Error(t, CooldownQuery{}.Validate())
	require.NoError(t, CooldownQuery{All: true}.Validate())
	require.NoError(t, CooldownQuery{Source: "fred"}.Validate())
	require.NoError(t, CooldownQuery{Prefix: "fr"}.Validate())
}

func TestCooldownQueryWhereClause(t *testing.T) {
	where, args, err := CooldownQuery{All: true}.whereClause()
	require.NoError(t, err)
	require.Empty(t, where)
	require.Empty(t, args)

	where, args, err = CooldownQuery{Source: " FRED "}.whereClause()
	require.NoError(t, err)
	require.Equal(t, "WHERE source = ?", where)
	require.Equal(t, []any{"fred"}, args)

	where, args, err = CooldownQuery{Prefix: "world"}.whereClause()
	require.NoError(t, err)
	require.Equal(t, "WHERE source LIKE ?", where)
	require.Equal(t, []any{"world%"}, args)

	_, _, err = CooldownQuery{}.whereClause()
	require.Error(t, err)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(nil, config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported store driver")
}
