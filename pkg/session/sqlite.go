package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Run statuses recorded in the crawl_runs table.
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
	RunStatusFailed      = "failed"
)

// Run is one engine invocation against a session store.
type Run struct {
	ID          string
	Root        string
	Fingerprint string
	StartedAt   time.Time
}

// SQLiteStore is the default session backend: an embedded SQLite database
// with a PRIMARY KEY uniqueness constraint carrying the claim semantics.
// It also records run provenance for resume diagnostics.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) a session database at path.
// Parent directories are created. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session store: %w", err)
	}
	if err := configureSQLite(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Init creates (or upgrades) the session schema in-place.
func (s *SQLiteStore) Init(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS processed_paths (
			path TEXT PRIMARY KEY,
			claimed_at TEXT NOT NULL,
			status TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS crawl_runs (
			run_id TEXT PRIMARY KEY,
			root TEXT NOT NULL,
			scope_fingerprint TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_runs_started_at ON crawl_runs(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if current != schemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, schemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Contains reports whether path has been claimed.
func (s *SQLiteStore) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_paths WHERE path = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session contains: %w", err)
	}
	return true, nil
}

// Claim atomically inserts path if absent. The uniqueness constraint on
// processed_paths.path makes this safe across workers and processes.
func (s *SQLiteStore) Claim(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_paths (path, claimed_at, status)
		 VALUES (?, ?, 'done')
		 ON CONFLICT(path) DO NOTHING`,
		key, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("session claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session claim rows: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of claimed paths.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_paths`).Scan(&count); err != nil {
		return 0, fmt.Errorf("session count: %w", err)
	}
	return count, nil
}

// BeginRun records a new run row and returns the most recent previous
// fingerprint ("" when this store has no prior runs). Callers should warn
// when the previous fingerprint differs: the processed-set was built under
// a different root or predicate.
func (s *SQLiteStore) BeginRun(ctx context.Context, root, fingerprint string) (*Run, string, error) {
	var prev string
	err := s.db.QueryRowContext(ctx,
		`SELECT scope_fingerprint FROM crawl_runs ORDER BY started_at DESC, run_id DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("read previous run: %w", err)
	}

	run := &Run{
		ID:          uuid.NewString(),
		Root:        root,
		Fingerprint: fingerprint,
		StartedAt:   time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_runs (run_id, root, scope_fingerprint, started_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.Fingerprint,
		run.StartedAt.Format(time.RFC3339), RunStatusRunning)
	if err != nil {
		return nil, "", fmt.Errorf("insert run: %w", err)
	}

	return run, prev, nil
}

// EndRun stamps a run's terminal status.
func (s *SQLiteStore) EndRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crawl_runs SET ended_at = ?, status = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the store's filesystem path ("" for in-memory stores).
func (s *SQLiteStore) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("session: store path is required")
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

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
