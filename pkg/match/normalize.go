// Package match provides discovery predicates for crawled file paths:
// doublestar glob matching with prefix derivation for subtree pruning,
// plus size, date, and regex filters.
package match

import (
	"path/filepath"
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePath converts an OS-native file path to the slash-separated
// form used by patterns and records. Forward-slash paths pass through
// unchanged.
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Normalization rules:
//   - Unescaped backslashes converted to forward slashes (Windows compat)
//   - Escaped backslashes and glob metacharacters preserved (\*, \?, \[, etc.)
//   - Leading slash, trailing slash, and // sequences preserved
//
// This allows Windows users to write patterns like "data\2024\**\*.docx"
// while preserving escape semantics for literal matching.
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\\' && i+1 < len(runes) {
			next := runes[i+1]
			// Preserve escape sequences for glob metacharacters
			if strings.ContainsRune(globEscapable, next) {
				result.WriteRune('\\')
				result.WriteRune(next)
				i++
				continue
			}
			// Unescaped backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		if r == '\\' {
			// Trailing backslash
			result.WriteRune('/')
			continue
		}

		result.WriteRune(r)
	}

	return result.String()
}

// IsHidden returns true if any path segment starts with a dot.
//
// Hidden segments follow Unix convention where files/directories
// starting with '.' are considered hidden.
//
// Examples:
//
//	"path/to/file.txt"      → false
//	".hidden/file.txt"      → true
//	"path/.hidden/file.txt" → true
//	"path/to/.gitignore"    → true
//	"path/to/file.txt."     → false (dot at end is not hidden)
func IsHidden(path string) bool {
	if path == "" {
		return false
	}

	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if seg != "" && seg != "." && seg != ".." && strings.HasPrefix(seg, ".") {
			return true
		}
	}

	return false
}

// HasTrailingSlash returns true if the path ends with a slash.
func HasTrailingSlash(path string) bool {
	return len(path) > 0 && path[len(path)-1] == '/'
}

// EnsureTrailingSlash adds a trailing slash if not present.
// Returns empty string unchanged.
func EnsureTrailingSlash(path string) string {
	if path == "" {
		return ""
	}
	if !HasTrailingSlash(path) {
		return path + "/"
	}
	return path
}
