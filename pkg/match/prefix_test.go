package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePrefix(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		// Basic cases
		{"empty pattern", "", ""},
		{"exact match", "exact/path/file.txt", "exact/path/file.txt"},
		{"simple wildcard", "*.json", ""},
		{"wildcard at end", "data/*.json", "data/"},
		{"double star", "data/**", "data/"},
		{"double star with suffix", "data/**/*.docx", "data/"},

		// Complex patterns
		{"brace expansion", "logs/app-{a,b}/*.log", "logs/"},
		{"character class", "data/[0-9]*/*.csv", "data/"},
		{"question mark", "data/file?.txt", "data/"},
		{"nested wildcards", "a/b/c/**/*.json", "a/b/c/"},

		// Edge cases
		{"leading wildcard", "**/file.txt", ""},
		{"wildcard in middle", "data/*/file.txt", "data/"},
		{"partial segment wildcard", "data/2024-*/*.csv", "data/"},
		{"only slash", "/", "/"},
		{"trailing slash preserved", "data/2024/", "data/2024/"},

		// Escaped metacharacters are literal path characters
		{"escaped asterisk exact", `data/file\*.txt`, "data/file*.txt"},
		{"escaped brackets then glob", `data/\[backup\]/*.log`, "data/[backup]/"},
		{"escape then glob in same segment", `data/file\*-*.txt`, "data/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DerivePrefix(tt.pattern))
		})
	}
}

func TestDerivePrefixes(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "empty",
			patterns: nil,
			expected: nil,
		},
		{
			name:     "disjoint prefixes",
			patterns: []string{"data/2024/**", "data/2025/**"},
			expected: []string{"data/2024/", "data/2025/"},
		},
		{
			name:     "parent subsumes child",
			patterns: []string{"data/**", "data/2024/**"},
			expected: []string{"data/"},
		},
		{
			name:     "empty prefix subsumes all",
			patterns: []string{"**/*.json", "data/2024/**"},
			expected: []string{""},
		},
		{
			name:     "duplicates collapse",
			patterns: []string{"data/*.csv", "data/*.json"},
			expected: []string{"data/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DerivePrefixes(tt.patterns))
		})
	}
}

func TestIsGlobPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"data/**/*.docx", true},
		{"data/file?.csv", true},
		{"data/[0-9].txt", true},
		{"path/to/file.txt", false},
		{`data/file\*.txt`, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGlobPattern(tt.pattern), tt.pattern)
		})
	}
}
