package indexstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the index schema in-place.
//
// The index holds one row per document plus an external-content FTS5
// table over (url, title, content). Triggers keep the FTS index in sync
// with the documents table.
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
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

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			site TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			class TEXT NOT NULL,
			ext TEXT NOT NULL,
			server TEXT NOT NULL,
			share TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			imported_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_site ON documents(site);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_class ON documents(class);`,

		// External-content FTS table: token index only, rows stay in
		// documents. Column order url(0), title(1), content(2) is
		// load-bearing for bm25 weights and highlight() offsets.
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			url, title, content,
			content='documents',
			content_rowid='rowid'
		);`,

		// External-content sync must use the 'delete' command form;
		// plain DELETE/UPDATE against the fts table corrupts the index.
		`CREATE TRIGGER IF NOT EXISTS documents_fts_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, url, title, content)
			VALUES (new.rowid, new.url, new.title, new.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_fts_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, url, title, content)
			VALUES ('delete', old.rowid, old.url, old.title, old.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_fts_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, url, title, content)
			VALUES ('delete', old.rowid, old.url, old.title, old.content);
			INSERT INTO documents_fts(rowid, url, title, content)
			VALUES (new.rowid, new.url, new.title, new.content);
		END;`,
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

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
