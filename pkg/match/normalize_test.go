package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"already slashed", "path/to/file.txt", "path/to/file.txt"},
		{"leading slash preserved", "/path/to/file.txt", "/path/to/file.txt"},
		{"spaces preserved", "path/file name.txt", "path/file name.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic cases
		{"empty string", "", ""},
		{"simple path", "path/to/file.txt", "path/to/file.txt"},
		{"glob pattern", "data/**/*.docx", "data/**/*.docx"},

		// Backslash to forward slash conversion (Windows compat)
		{"backslashes converted", "path\\to\\file.txt", "path/to/file.txt"},
		{"mixed slashes", "path\\to/file.txt", "path/to/file.txt"},
		{"trailing backslash", "path\\to\\dir\\", "path/to/dir/"},

		// Escape sequences preserved
		{"escaped asterisk", "data/file\\*.txt", "data/file\\*.txt"},
		{"escaped question mark", "data/file\\?.txt", "data/file\\?.txt"},
		{"escaped brackets", "data/\\[backup\\]/*.log", "data/\\[backup\\]/*.log"},
		{"escaped backslash", "data\\\\file.txt", "data\\\\file.txt"},

		// Slash handling
		{"leading slash preserved", "/data/2024/**", "/data/2024/**"},
		{"double slash preserved", "data//2024/**", "data//2024/**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePattern(tt.input))
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"path/to/file.txt", false},
		{".hidden/file.txt", true},
		{"path/.hidden/file.txt", true},
		{"path/to/.gitignore", true},
		{"path/to/file.txt.", false},
		{"", false},
		{".data.session.db", true},
		{"..", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHidden(tt.path), tt.path)
		})
	}
}

func TestTrailingSlashHelpers(t *testing.T) {
	assert.True(t, HasTrailingSlash("data/"))
	assert.False(t, HasTrailingSlash("data"))
	assert.False(t, HasTrailingSlash(""))

	assert.Equal(t, "data/", EnsureTrailingSlash("data"))
	assert.Equal(t, "data/", EnsureTrailingSlash("data/"))
	assert.Equal(t, "", EnsureTrailingSlash(""))
}
