package indexstore

import (
	"context"
	"fmt"
)

// SiteInfo summarizes one site's slice of the index.
type SiteInfo struct {
	Site      string
	Documents int64
	// Newest is the most recent crawl timestamp among the site's
	// documents, seconds since the Unix epoch.
	Newest int64
}

// Sites lists every site with its document count, alphabetically.
func (s *Store) Sites(ctx context.Context) ([]SiteInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site, COUNT(*), COALESCE(MAX(timestamp), 0)
		 FROM documents
		 GROUP BY site
		 ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sites []SiteInfo
	for rows.Next() {
		var info SiteInfo
		if err := rows.Scan(&info.Site, &info.Documents, &info.Newest); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// DeleteSite removes all documents for one site and returns how many
// rows went away. The FTS index follows via triggers.
func (s *Store) DeleteSite(ctx context.Context, site string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE site = ?`, site)
	if err != nil {
		return 0, fmt.Errorf("delete site %s: %w", site, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// StatsReport aggregates index-wide totals.
type StatsReport struct {
	Documents int64
	Sites     int64
	ByClass   map[string]int64
	// DBBytes is the database size from the page pragmas.
	DBBytes int64
}

// Stats reports document and site totals, a per-class breakdown, and the
// database size.
func (s *Store) Stats(ctx context.Context) (*StatsReport, error) {
	report := &StatsReport{ByClass: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT site) FROM documents`).
		Scan(&report.Documents, &report.Sites)
	if err != nil {
		return nil, fmt.Errorf("get document stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT class, COUNT(*) FROM documents GROUP BY class`)
	if err != nil {
		return nil, fmt.Errorf("get class stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var class string
		var n int64
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("scan class stat: %w", err)
		}
		report.ByClass[class] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate class stats: %w", err)
	}

	size, err := s.SizeBytes(ctx)
	if err != nil {
		return nil, err
	}
	report.DBBytes = size

	return report, nil
}

// Drop removes every document but keeps the schema in place. Returns the
// number of rows removed.
func (s *Store) Drop(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("drop documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
