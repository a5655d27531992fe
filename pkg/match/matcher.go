package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates glob patterns against physical file paths.
//
// A Matcher is configured with include and exclude patterns:
//   - Include patterns: path must match at least one
//   - Exclude patterns: path must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []pattern
	excludes      []pattern
	prefixes      []string
	includeHidden bool
}

// pattern holds a compiled pattern with its original string and derived prefix.
type pattern struct {
	raw    string
	prefix string
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that paths must match (at least one).
	// Required: at least one include pattern must be specified.
	Includes []string

	// Excludes are glob patterns that paths must not match (any).
	// Optional: if empty, no excludes are applied.
	Excludes []string

	// IncludeHidden controls whether hidden files are matched.
	// Hidden files have path segments starting with '.'.
	// Default: false (hidden files are excluded, which also keeps the
	// crawl away from its own session and dedup files).
	IncludeHidden bool
}

// Errors returned by Matcher operations.
var (
	// ErrNoIncludes is returned when no include patterns are provided.
	ErrNoIncludes = errors.New("at least one include pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a new Matcher from the given configuration.
//
// Patterns are normalized to handle Windows-style backslash separators
// while preserving escape sequences for literal glob metacharacters.
//
// Returns an error if:
//   - No include patterns are provided
//   - Any pattern is invalid (cannot be compiled)
func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}

	includes := make([]pattern, 0, len(cfg.Includes))
	for _, raw := range cfg.Includes {
		normalized := NormalizePattern(raw)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		includes = append(includes, pattern{
			raw:    normalized,
			prefix: DerivePrefix(normalized),
		})
	}

	excludes := make([]pattern, 0, len(cfg.Excludes))
	for _, raw := range cfg.Excludes {
		normalized := NormalizePattern(raw)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		excludes = append(excludes, pattern{
			raw:    normalized,
			prefix: DerivePrefix(normalized),
		})
	}

	normalizedIncludes := make([]string, len(includes))
	for i, p := range includes {
		normalizedIncludes[i] = p.raw
	}
	prefixes := DerivePrefixes(normalizedIncludes)

	return &Matcher{
		includes:      includes,
		excludes:      excludes,
		prefixes:      prefixes,
		includeHidden: cfg.IncludeHidden,
	}, nil
}

// Match returns true if the path matches the include/exclude patterns.
//
// A path matches if:
//  1. It matches at least one include pattern
//  2. It does not match any exclude pattern
//  3. It is not hidden (unless IncludeHidden is true)
//
// Paths are normalized to forward slashes before matching, so entries
// produced by Windows walks compare against the same patterns.
func (m *Matcher) Match(path string) bool {
	p := NormalizePath(path)

	// Check hidden first (fast path)
	if !m.includeHidden && IsHidden(p) {
		return false
	}

	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc.raw, p) {
			matched = true
			break
		}
	}

	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc.raw, p) {
			return false
		}
	}

	return true
}

// CanDescend reports whether any include pattern could match a path under
// dir. The walker uses it to prune whole subtrees that no pattern reaches.
//
// A subtree is worth visiting when dir lies inside a derived prefix, or a
// derived prefix lies inside dir. An empty derived prefix means some
// pattern needs the full walk.
func (m *Matcher) CanDescend(dir string) bool {
	if len(m.prefixes) == 0 {
		return true
	}
	d := EnsureTrailingSlash(NormalizePath(dir))
	for _, p := range m.prefixes {
		if p == "" || strings.HasPrefix(d, p) || strings.HasPrefix(p, d) {
			return true
		}
	}
	return false
}

// Prefixes returns the deduplicated static prefixes of the include
// patterns. An empty string in the result means at least one pattern
// requires a full walk (no pruning possible).
func (m *Matcher) Prefixes() []string {
	return m.prefixes
}

// IncludePatterns returns the raw include patterns.
func (m *Matcher) IncludePatterns() []string {
	patterns := make([]string, len(m.includes))
	for i, p := range m.includes {
		patterns[i] = p.raw
	}
	return patterns
}

// ExcludePatterns returns the raw exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	patterns := make([]string, len(m.excludes))
	for i, p := range m.excludes {
		patterns[i] = p.raw
	}
	return patterns
}

// IncludesHidden reports whether hidden paths are eligible.
func (m *Matcher) IncludesHidden() bool {
	return m.includeHidden
}

// matchPattern matches a path against a doublestar pattern.
func matchPattern(pattern, path string) bool {
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		// Pattern was validated at construction time, so this shouldn't happen
		return false
	}
	return matched
}
