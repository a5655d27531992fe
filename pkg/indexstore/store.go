// Package indexstore is the embedded full-text search index over crawl
// results.
//
// Documents live in a plain SQLite table; an external-content FTS5 table
// indexes (url, title, content) and is kept in sync by triggers. The
// bridge side streams a completed crawl CSV into batched upserts keyed by
// the hex md5 of each record's logical URL, so re-imports replace rather
// than duplicate. The query side serves ranked search, title
// autocomplete, and cached-document reads for the CLI and the HTTP
// facade.
package indexstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document id has no row.
var ErrNotFound = errors.New("indexstore: document not found")

// Store is an open index database. Safe for concurrent use; the
// underlying pool is pinned to one connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the index database at path. Parent
// directories are created. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping index store: %w", err)
	}
	if err := configureSQLite(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Init creates (or upgrades) the index schema in-place.
func (s *Store) Init(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store's filesystem path ("" for in-memory stores).
func (s *Store) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

// SizeBytes reports the database size from the page pragmas, which also
// works for in-memory stores.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("read page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("read page_size: %w", err)
	}
	return pageCount * pageSize, nil
}

// CheckFTS5 verifies the SQLite build carries the FTS5 module by creating
// and discarding an in-memory virtual table. Used by environment checks.
func CheckFTS5(ctx context.Context) error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("open probe db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE VIRTUAL TABLE probe USING fts5(x)`); err != nil {
		return fmt.Errorf("fts5 unavailable: %w", err)
	}
	return nil
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("indexstore: database path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

func configureSQLite(ctx context.Context, db *sql.DB, dsn string) error {
	// Keep a single connection and use WAL to reduce lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if dsn == ":memory:" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}
