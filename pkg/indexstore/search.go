package indexstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyQuery is returned when a search query has no terms.
var ErrEmptyQuery = errors.New("indexstore: empty query")

// Relevance weights for bm25 over (url, title, content). URL hits
// dominate, then title, then body text.
const rankWeights = "100.0, 50.0, 5.0"

const (
	defaultSearchLimit  = 10
	snippetRadius       = 25
	snippetMaxFragments = 3
	snippetFallbackLen  = 150

	suggestMinRunes = 2
	suggestMaxRunes = 20
)

// SearchOptions narrows and pages a search.
type SearchOptions struct {
	// Site restricts hits to one site when non-empty.
	Site string
	// Class restricts hits to one extractor class when non-empty.
	Class string
	// Limit caps returned hits (default 10).
	Limit int
	// Offset skips leading hits for paging.
	Offset int
	// HighlightPre and HighlightPost wrap matched terms in snippets
	// (defaults "[" and "]").
	HighlightPre  string
	HighlightPost string
}

// Hit is one ranked search result.
type Hit struct {
	ID        string
	URL       string
	Title     string
	Site      string
	Class     string
	Server    string
	Share     string
	Timestamp string
	Snippet   string
	Rank      float64
}

// SearchResult is one page of hits plus the total match count.
type SearchResult struct {
	Hits  []Hit
	Total int64
}

// Search runs a ranked full-text query. Terms combine with implicit AND;
// each term is quoted before matching so user input cannot inject FTS5
// operators.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	match, err := buildMatch(query)
	if err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.HighlightPre == "" {
		opts.HighlightPre = "["
	}
	if opts.HighlightPost == "" {
		opts.HighlightPost = "]"
	}

	filter, filterArgs := buildFilter(opts)

	total, err := s.countMatches(ctx, match, filter, filterArgs)
	if err != nil {
		return nil, err
	}

	q := `SELECT d.id, d.url, d.title, d.site, d.class, d.server, d.share, d.timestamp,
		bm25(documents_fts, ` + rankWeights + `) AS rank,
		highlight(documents_fts, 2, ?, ?) AS marked
	 FROM documents_fts
	 JOIN documents d ON d.rowid = documents_fts.rowid
	 WHERE documents_fts MATCH ?` + filter + `
	 ORDER BY rank
	 LIMIT ? OFFSET ?`

	args := []any{opts.HighlightPre, opts.HighlightPost, match}
	args = append(args, filterArgs...)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &SearchResult{Total: total}
	for rows.Next() {
		var h Hit
		var ts int64
		var marked string
		if err := rows.Scan(&h.ID, &h.URL, &h.Title, &h.Site, &h.Class,
			&h.Server, &h.Share, &ts, &h.Rank, &marked); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.Timestamp = DisplayTime(ts)
		h.Snippet = fragmentSnippet(marked, opts.HighlightPre, opts.HighlightPost)
		result.Hits = append(result.Hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return result, nil
}

// Suggest returns up to limit distinct titles containing a token that
// starts with prefix, most frequent first. Prefixes under two runes
// return nothing; over twenty runes they are truncated.
func (s *Store) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	runes := []rune(prefix)
	if len(runes) < suggestMinRunes {
		return nil, nil
	}
	if len(runes) > suggestMaxRunes {
		prefix = string(runes[:suggestMaxRunes])
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	match := `title : "` + strings.ReplaceAll(prefix, `"`, `""`) + `"*`

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.title, COUNT(*) AS n
		 FROM documents_fts
		 JOIN documents d ON d.rowid = documents_fts.rowid
		 WHERE documents_fts MATCH ?
		 GROUP BY d.title
		 ORDER BY n DESC, d.title
		 LIMIT ?`,
		match, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var titles []string
	for rows.Next() {
		var title string
		var n int64
		if err := rows.Scan(&title, &n); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return titles, nil
}

func (s *Store) countMatches(ctx context.Context, match, filter string, filterArgs []any) (int64, error) {
	q := `SELECT COUNT(*)
	 FROM documents_fts
	 JOIN documents d ON d.rowid = documents_fts.rowid
	 WHERE documents_fts MATCH ?` + filter

	args := append([]any{match}, filterArgs...)

	var total int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return total, nil
}

// buildMatch renders user input as an FTS5 MATCH string: one quoted
// string per whitespace-separated term, joined by implicit AND.
func buildMatch(query string) (string, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return "", ErrEmptyQuery
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " "), nil
}

func buildFilter(opts SearchOptions) (string, []any) {
	var filter string
	var args []any
	if opts.Site != "" {
		filter += " AND d.site = ?"
		args = append(args, opts.Site)
	}
	if opts.Class != "" {
		filter += " AND d.class = ?"
		args = append(args, opts.Class)
	}
	return filter, args
}

// fragmentSnippet condenses highlighted content to at most three short
// windows around marked terms, joined by " ... ". Content without marks
// (a url- or title-only hit) falls back to a plain prefix.
func fragmentSnippet(marked, pre, post string) string {
	type span struct{ start, end int }
	var spans []span

	from := 0
	for len(spans) < snippetMaxFragments {
		i := strings.Index(marked[from:], pre)
		if i < 0 {
			break
		}
		i += from
		j := strings.Index(marked[i+len(pre):], post)
		if j < 0 {
			break
		}
		j += i + len(pre) + len(post)

		start := runeFloor(marked, i-snippetRadius)
		end := runeCeil(marked, j+snippetRadius)
		if n := len(spans); n > 0 && start <= spans[n-1].end {
			spans[n-1].end = end
		} else {
			spans = append(spans, span{start, end})
		}
		from = j
	}

	if len(spans) == 0 {
		return truncateSnippet(marked, snippetFallbackLen)
	}

	parts := make([]string, len(spans))
	for i, sp := range spans {
		parts[i] = strings.TrimSpace(marked[sp.start:sp.end])
	}
	return strings.Join(parts, " ... ")
}

func truncateSnippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:runeFloor(s, max)]) + " ..."
}

func runeFloor(s string, i int) int {
	if i < 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func runeCeil(s string, i int) int {
	if i > len(s) {
		return len(s)
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
