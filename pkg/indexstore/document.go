package indexstore

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Document is one indexed crawl record.
type Document struct {
	// ID is the hex md5 of the logical URL. Stable across re-imports of
	// the same file, so imports replace rather than duplicate.
	ID string
	// Site groups documents by originating crawl, defaulting to the CSV
	// filename stem.
	Site string
	// URL is the logical URL from the crawl record, including any
	// #fragment for nested container entries.
	URL string
	// Title is the filename-as-title: the base name of the URL,
	// including any fragment target.
	Title string
	// Content is the extracted text.
	Content string
	// Class is the extractor class that produced the content.
	Class string
	// Ext is the lowercase filename extension without the dot.
	Ext string
	// Server and Share locate the document on the source filesystem.
	Server string
	Share  string
	// Timestamp is the crawl time, seconds since the Unix epoch.
	Timestamp int64
}

// DocID derives the document id for a logical URL.
func DocID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// TitleForURL derives the filename-as-title from a logical URL: the text
// after the last '#' when present, otherwise the text after the last
// '/'.
func TitleForURL(url string) string {
	if i := strings.LastIndexByte(url, '#'); i >= 0 {
		return url[i+1:]
	}
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}

// DisplayTime renders an epoch timestamp for human-facing output.
func DisplayTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}

// GetDocument fetches one document by id. Returns ErrNotFound when no
// row matches.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	const q = `SELECT id, site, url, title, content, class, ext, server, share, timestamp
		FROM documents WHERE id = ?`

	var doc Document
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&doc.ID, &doc.Site, &doc.URL, &doc.Title, &doc.Content,
		&doc.Class, &doc.Ext, &doc.Server, &doc.Share, &doc.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}
