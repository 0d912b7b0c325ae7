package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/econlens/econlens/internal/core"
)

// SweepExpired deletes cache entries whose TTL has elapsed, returning the
// number removed. The sweep runs on demand only; nothing schedules it.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		DELETE FROM fetch_cache
		WHERE expires_at <= ?
	`, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep expired cache entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired cache entries: %w", err)
	}
	return affected, nil
}

// ClearCache deletes every cache entry, returning the number removed.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM fetch_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return affected, nil
}

// CacheStats summarizes the cache for the admin surface.
func (s *Store) CacheStats(ctx context.Context) (*core.CacheStats, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Unix()
	stats := &core.CacheStats{}

	row := s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0)
		FROM fetch_cache
	`, now)
	if err := row.Scan(&stats.Total, &stats.Active); err != nil {
		return nil, fmt.Errorf("count cache entries: %w", err)
	}
	stats.Expired = stats.Total - stats.Active

	rows, err := s.DB.QueryContext(ctx, `
		SELECT source, COUNT(*)
		FROM fetch_cache
		GROUP BY source
		ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("count cache entries by source: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var (
			source string
			count  int64
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan cache source counts: %w", err)
		}
		if stats.BySource == nil {
			stats.BySource = make(map[string]int64)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan cache source counts: %w", err)
	}

	sizeRow := s.DB.QueryRowContext(ctx, `
		SELECT page_count * page_size
		FROM pragma_page_count(), pragma_page_size()
	`)
	if err := sizeRow.Scan(&stats.SizeBytes); err != nil {
		// Size is advisory; a driver without pragma support still gets counts.
		stats.SizeBytes = 0
	}

	return stats, nil
}
