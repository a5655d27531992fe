package indexstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBatchSize is the number of documents upserted per transaction
// during import.
const DefaultBatchSize = 500

// ImportStats summarizes one CSV import.
type ImportStats struct {
	// Site is the resolved site name documents were filed under.
	Site string
	// Imported counts rows upserted into the index.
	Imported int64
	// Skipped counts rows dropped for being malformed or too short.
	Skipped int64
}

// Import streams a crawl CSV into the index in batched upserts. Document
// ids derive from the logical URL, so importing the same CSV twice
// replaces rows instead of duplicating them.
//
// site defaults to the CSV filename stem when empty. batchSize defaults
// to DefaultBatchSize when zero or negative.
func (s *Store) Import(ctx context.Context, csvPath, site string, batchSize int) (*ImportStats, error) {
	if site == "" {
		base := filepath.Base(csvPath)
		site = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	// Row shape is validated per record; short rows are skipped, not fatal.
	r.FieldsPerRecord = -1

	stats := &ImportStats{Site: site}
	batch := make([]Document, 0, batchSize)

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		doc, ok := docFromRow(row, site)
		if !ok {
			stats.Skipped++
			continue
		}
		batch = append(batch, doc)

		if len(batch) >= batchSize {
			if err := s.upsertBatch(ctx, batch); err != nil {
				return nil, err
			}
			stats.Imported += int64(len(batch))
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := s.upsertBatch(ctx, batch); err != nil {
			return nil, err
		}
		stats.Imported += int64(len(batch))
	}

	return stats, nil
}

// docFromRow maps one crawl CSV row to a document. Row fields are
// timestamp, url, path, server, share, ext, class, content; the physical
// path is not indexed.
func docFromRow(row []string, site string) (Document, bool) {
	if len(row) < 8 {
		return Document{}, false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return Document{}, false
	}
	url := row[1]
	return Document{
		ID:        DocID(url),
		Site:      site,
		URL:       url,
		Title:     TitleForURL(url),
		Content:   row[7],
		Class:     row[6],
		Ext:       row[5],
		Server:    row[3],
		Share:     row[4],
		Timestamp: ts,
	}, true
}

// upsertBatch writes one batch of documents in a single transaction.
func (s *Store) upsertBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents
		 (id, site, url, title, content, class, ext, server, share, timestamp, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   site = excluded.site,
		   url = excluded.url,
		   title = excluded.title,
		   content = excluded.content,
		   class = excluded.class,
		   ext = excluded.ext,
		   server = excluded.server,
		   share = excluded.share,
		   timestamp = excluded.timestamp,
		   imported_at = excluded.imported_at`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	importedAt := time.Now().UTC().Format(time.RFC3339)
	for _, doc := range docs {
		_, err := stmt.ExecContext(ctx,
			doc.ID, doc.Site, doc.URL, doc.Title, doc.Content,
			doc.Class, doc.Ext, doc.Server, doc.Share, doc.Timestamp,
			importedAt)
		if err != nil {
			return fmt.Errorf("exec upsert for %s: %w", doc.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpsertDocuments writes documents directly, bypassing CSV parsing. Used
// by tests and programmatic callers.
func (s *Store) UpsertDocuments(ctx context.Context, docs []Document) error {
	return s.upsertBatch(ctx, docs)
}
