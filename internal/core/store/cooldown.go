package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/econlens/econlens/internal/core"
)

// GetCooldown returns the persisted cooldown for a source, nil when none is
// recorded.
func (s *Store) GetCooldown(ctx context.Context, source string) (*core.Cooldown, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	source = normalizeSource(source)
	if source == "" {
		return nil, errors.New("source is required")
	}

	var (
		until           int64
		lastThrottledAt int64
		hits            int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT until, last_throttled_at, hits
		FROM source_cooldowns
		WHERE source = ?
	`, source)

	if err := row.Scan(&until, &lastThrottledAt, &hits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cooldown: %w", err)
	}

	return &core.Cooldown{
		Source:          source,
		Until:           time.Unix(until, 0).UTC(),
		LastThrottledAt: time.Unix(lastThrottledAt, 0).UTC(),
		Hits:            hits,
	}, nil
}

// RecordCooldown persists a provider-imposed pause for a source, extending
// any existing row and counting the throttle hit.
func (s *Store) RecordCooldown(ctx context.Context, source string, until time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	source = normalizeSource(source)
	if source == "" {
		return errors.New("source is required")
	}

	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO source_cooldowns (source, until, last_throttled_at, hits)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(source) DO UPDATE SET
			until = excluded.until,
			last_throttled_at = excluded.last_throttled_at,
			hits = source_cooldowns.hits + 1
	`, source, until.UTC().Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("store cooldown: %w", err)
	}

	return nil
}

// CooldownQuery selects cooldown rows for the admin surface. Exactly one of
// All, Source, or Prefix must be set.
type CooldownQuery struct {
	All    bool
	Source string
	Prefix string
}

func (q CooldownQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Source) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --source, or --prefix")
}

func (q CooldownQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if source := normalizeSource(q.Source); source != "" {
		return "WHERE source = ?", []any{source}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE source LIKE ?", []any{strings.ToLower(prefix) + "%"}, nil
}

// ListCooldowns returns cooldown rows matching the query, ordered by source.
func (s *Store) ListCooldowns(ctx context.Context, q CooldownQuery) ([]core.Cooldown, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT source, until, last_throttled_at, hits
		FROM source_cooldowns
		%s
		ORDER BY source
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	cooldowns := []core.Cooldown{}
	for rows.Next() {
		var (
			source          string
			until           int64
			lastThrottledAt int64
			hits            int64
		)
		if err := rows.Scan(&source, &until, &lastThrottledAt, &hits); err != nil {
			return nil, fmt.Errorf("scan cooldowns: %w", err)
		}
		cooldowns = append(cooldowns, core.Cooldown{
			Source:          source,
			Until:           time.Unix(until, 0).UTC(),
			LastThrottledAt: time.Unix(lastThrottledAt, 0).UTC(),
			Hits:            hits,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}

	return cooldowns, nil
}

// CountCooldowns returns how many cooldown rows match the query.
func (s *Store) CountCooldowns(ctx context.Context, q CooldownQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM source_cooldowns
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count cooldowns: %w", err)
	}
	return count, nil
}

// ResetCooldowns deletes cooldown rows matching the query, returning the
// number removed.
func (s *Store) ResetCooldowns(ctx context.Context, q CooldownQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM source_cooldowns
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset cooldowns: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset cooldowns: %w", err)
	}
	return affected, nil
}

func normalizeSource(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}
