package match

import (
	"sort"
	"strings"
)

// DerivePrefix extracts the longest static prefix from a glob pattern.
//
// The prefix is the portion of the pattern before any unescaped glob
// metacharacter. Escaped metacharacters (\*, \?, \[, \{) are treated as
// literals and included in the prefix. The walker uses prefixes to skip
// directories no pattern can reach.
//
// Examples:
//
//	"data/2024/**/*.docx"    → "data/2024/"
//	"*.json"                 → ""
//	"logs/app-{a,b}/*.log"   → "logs/"
//	"exact/path/file.txt"    → "exact/path/file.txt"
//	"data/[0-9]*/*.csv"      → "data/"
//	"data/file\*.txt"        → "data/file*.txt" (escaped * is literal)
func DerivePrefix(pattern string) string {
	if pattern == "" {
		return ""
	}

	pattern = NormalizePattern(pattern)

	metaIdx := findFirstUnescapedMeta(pattern)

	if metaIdx == -1 {
		// No unescaped metacharacters - pattern is an exact path
		return unescapePrefix(pattern)
	}

	if metaIdx == 0 {
		return ""
	}

	prefix := pattern[:metaIdx]

	// Truncate to last complete path segment:
	// "data/2024-" becomes "data/" not "data/2024-"
	lastSlash := strings.LastIndex(prefix, "/")
	if lastSlash >= 0 {
		return unescapePrefix(prefix[:lastSlash+1])
	}

	return ""
}

// findFirstUnescapedMeta returns the index of the first unescaped glob
// metacharacter (* ? [ {) in the pattern, or -1 if none found.
//
// A plain IndexAny cannot distinguish literal metacharacters (escaped with
// \) from glob metacharacters; patterns like "data/file\*.txt" would
// incorrectly terminate at \*.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]

		if c == '\\' && i+1 < len(pattern) {
			next := pattern[i+1]
			if next == '*' || next == '?' || next == '[' || next == '{' || next == '\\' {
				i++ // Skip the escaped character
				continue
			}
			continue
		}

		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// unescapePrefix removes escape backslashes from glob metacharacters in a
// prefix, converting pattern syntax into the literal path characters that
// appear on disk.
func unescapePrefix(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}

	var result strings.Builder
	result.Grow(len(prefix))

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]

		if c == '\\' && i+1 < len(prefix) {
			next := prefix[i+1]
			if next == '*' || next == '?' || next == '[' || next == ']' ||
				next == '{' || next == '}' || next == '\\' {
				result.WriteByte(next)
				i++
				continue
			}
		}

		result.WriteByte(c)
	}

	return result.String()
}

// DerivePrefixes extracts prefixes from multiple patterns and deduplicates
// them.
//
// The returned prefixes are:
//   - Derived from each include pattern
//   - Deduplicated (parent prefixes subsume children)
//   - Sorted for deterministic ordering
//
// Examples:
//
//	["data/2024/**", "data/2025/**"] → ["data/2024/", "data/2025/"]
//	["data/**", "data/2024/**"]      → ["data/"]  (parent subsumes child)
//	["**/*.json"]                    → [""]       (empty = full walk)
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefix := DerivePrefix(p)
		prefixes = append(prefixes, prefix)
	}

	return deduplicatePrefixes(prefixes)
}

// deduplicatePrefixes removes prefixes that are subsumed by shorter
// prefixes. "data/" subsumes "data/2024/"; the empty string subsumes all.
func deduplicatePrefixes(prefixes []string) []string {
	if len(prefixes) == 0 {
		return nil
	}

	for _, p := range prefixes {
		if p == "" {
			return []string{""}
		}
	}

	sorted := make([]string, len(prefixes))
	copy(sorted, prefixes)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) < len(sorted[j])
	})

	result := make([]string, 0, len(sorted))
	for _, candidate := range sorted {
		subsumed := false
		for _, existing := range result {
			if strings.HasPrefix(candidate, existing) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			result = append(result, candidate)
		}
	}

	sort.Strings(result)

	return result
}

// IsGlobPattern returns true if the pattern contains unescaped glob
// metacharacters. Escape-aware: "data/file\*.txt" is an exact path.
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(pattern) != -1
}
