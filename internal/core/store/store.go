package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/econlens/econlens/internal/config"
)

const driverLibsql = "libsql"

// Store wraps the single-file database holding all durable state: the fetch
// cache and provider cooldowns.
type Store struct {
	DB     *sql.DB
	driver string
	path   string
}

// Open initializes a store connection using the provided configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}

	if ctx == nil {
		ctx = context.Background()
	}

	switch driver {
	case driverLibsql:
		dsn, path, err := buildLibsqlDSN(cfg)
		if err != nil {
			return nil, err
		}

		db, err := sql.Open(driverLibsql, dsn)
		if err != nil {
			return nil, fmt.Errorf("open libsql store: %w", err)
		}

		// One pooled connection: concurrent fetches serialize on the file,
		// and an in-memory database stays a single database.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping libsql store: %w", err)
		}

		if path != "" {
			if err := configureLocal(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}

		return &Store{DB: db, driver: driver, path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// Path returns the local database file path, empty for in-memory stores.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func buildLibsqlDSN(cfg config.StoreConfig) (dsn string, path string, err error) {
	path = strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", "", errors.New("store path is required")
	}

	if path == ":memory:" {
		return path, "", nil
	}

	if strings.HasPrefix(path, "file:") {
		localPath, err := extractFilePath(path)
		if err != nil {
			return "", "", err
		}
		if err := ensureStoreDir(localPath); err != nil {
			return "", "", err
		}
		return path, localPath, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", "", err
	}
	clean := filepath.Clean(path)
	return "file:" + clean, clean, nil
}

// configureLocal applies the pragmas concurrent writers need on a local
// file: WAL keeps readers unblocked during writes, and the busy timeout
// rides out short lock contention instead of failing.
func configureLocal(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		// Pragmas report their resulting value as a row, and the libsql
		// driver rejects Exec for row-returning statements.
		rows, err := db.QueryContext(ctx, pragma)
		if err != nil {
			return fmt.Errorf("configure local store: %w", err)
		}
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("configure local store: %w", err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("configure local store: %w", err)
		}
	}
	return nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}

	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}

	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
