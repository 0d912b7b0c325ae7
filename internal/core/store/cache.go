package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/econlens/econlens/internal/core"
)

// GetPayload returns a cached payload if it is still fresh. Absent and
// expired entries both return nil, nil; the fallback path uses
// GetPayloadStale to see expired rows.
func (s *Store) GetPayload(ctx context.Context, key string) (*core.CachedPayload, error) {
	return s.getPayload(ctx, key, true)
}

// GetPayloadStale returns a cached payload regardless of expiry. Used
// exclusively by the stale-fallback path.
func (s *Store) GetPayloadStale(ctx context.Context, key string) (*core.CachedPayload, error) {
	return s.getPayload(ctx, key, false)
}

func (s *Store) getPayload(ctx context.Context, key string, freshOnly bool) (*core.CachedPayload, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	query := `
		SELECT key, value, created_at, expires_at, source, series_id, metadata
		FROM fetch_cache
		WHERE key = ?
	`
	args := []any{key}
	if freshOnly {
		query += ` AND expires_at > ?`
		args = append(args, time.Now().UTC().Unix())
	}

	var (
		value     string
		createdAt int64
		expiresAt int64
		source    string
		seriesID  string
		metaJSON  sql.NullString
	)

	row := s.DB.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&key, &value, &createdAt, &expiresAt, &source, &seriesID, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached payload: %w", err)
	}

	var metadata map[string]string
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &metadata); err != nil {
			return nil, fmt.Errorf("decode cached payload metadata: %w", err)
		}
	}

	return &core.CachedPayload{
		Key:       key,
		Value:     value,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
		Source:    source,
		SeriesID:  seriesID,
		Metadata:  metadata,
	}, nil
}

// SetPayload stores a payload with a TTL, overwriting any previous entry for
// the key. A non-positive TTL is a no-op.
func (s *Store) SetPayload(ctx context.Context, entry *core.CachedPayload, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if ttl <= 0 || entry == nil {
		return nil
	}

	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return errors.New("cache key is required")
	}

	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode cached payload metadata: %w", err)
	}

	now := time.Now().UTC()
	expires := now.Add(ttl)

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO fetch_cache (key, value, created_at, expires_at, source, series_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			source = excluded.source,
			series_id = excluded.series_id,
			metadata = excluded.metadata
	`, key, entry.Value, now.Unix(), expires.Unix(), entry.Source, entry.SeriesID, string(metaJSON))
	if err != nil {
		return fmt.Errorf("store cached payload: %w", err)
	}

	return nil
}

// DeletePayload removes one cache entry, reporting whether it existed.
func (s *Store) DeletePayload(ctx context.Context, key string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("cache key is required")
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM fetch_cache WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete cached payload: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cached payload: %w", err)
	}
	return affected > 0, nil
}
