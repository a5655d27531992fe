package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     error
		wantErrType interface{}
	}{
		{
			name:    "valid single include",
			cfg:     Config{Includes: []string{"data/**"}},
			wantErr: nil,
		},
		{
			name:    "valid with excludes",
			cfg:     Config{Includes: []string{"data/**"}, Excludes: []string{"**/backup/**"}},
			wantErr: nil,
		},
		{
			name:    "no includes",
			cfg:     Config{},
			wantErr: ErrNoIncludes,
		},
		{
			name:    "empty includes slice",
			cfg:     Config{Includes: []string{}},
			wantErr: ErrNoIncludes,
		},
		{
			name:        "invalid include pattern",
			cfg:         Config{Includes: []string{"[invalid"}},
			wantErrType: &PatternError{},
		},
		{
			name:        "invalid exclude pattern",
			cfg:         Config{Includes: []string{"**"}, Excludes: []string{"[invalid"}},
			wantErrType: &PatternError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Nil(t, m)
			} else if tt.wantErrType != nil {
				require.Error(t, err)
				assert.IsType(t, tt.wantErrType, err)
				assert.Nil(t, m)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, m)
			}
		})
	}
}

func TestPatternErrorUnwrap(t *testing.T) {
	_, err := New(Config{Includes: []string{"data/[invalid"}})
	require.Error(t, err)

	var perr *PatternError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "data/[invalid", perr.Pattern)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestMatchIncludeExclude(t *testing.T) {
	m, err := New(Config{
		Includes: []string{"smb/fs01/share/**"},
		Excludes: []string{"**/*.tmp", "**/backup/**"},
	})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"smb/fs01/share/notes.txt", true},
		{"smb/fs01/share/Finance/Q1.docx", true},
		{"smb/fs01/share/scratch.tmp", false},
		{"smb/fs01/share/backup/old.docx", false},
		{"smb/fs02/share/notes.txt", false},
		{"nfs/nas/exports/notes.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Match(tt.path), tt.path)
	}
}

func TestMatchHiddenExcludedByDefault(t *testing.T) {
	m, err := New(Config{Includes: []string{"**"}})
	require.NoError(t, err)

	assert.True(t, m.Match("data/report.pdf"))
	assert.False(t, m.Match("data/.git/config"))
	assert.False(t, m.Match(".data.session.db"))
	assert.False(t, m.IncludesHidden())
}

func TestMatchHiddenOptIn(t *testing.T) {
	m, err := New(Config{Includes: []string{"**"}, IncludeHidden: true})
	require.NoError(t, err)

	assert.True(t, m.Match("data/.hidden/report.pdf"))
	assert.True(t, m.IncludesHidden())
}

func TestMatchNormalizesWindowsPaths(t *testing.T) {
	m, err := New(Config{Includes: []string{`data\2024\**`}})
	require.NoError(t, err)

	assert.True(t, m.Match(`data\2024\report.docx`))
	assert.True(t, m.Match("data/2024/report.docx"))
	assert.Equal(t, []string{"data/2024/**"}, m.IncludePatterns())
}

func TestPrefixesAccessor(t *testing.T) {
	m, err := New(Config{
		Includes: []string{"data/2024/**", "data/2025/**"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/2024/", "data/2025/"}, m.Prefixes())
}

func TestCanDescend(t *testing.T) {
	m, err := New(Config{
		Includes: []string{"data/2024/**/*.docx"},
	})
	require.NoError(t, err)

	// Ancestors of the prefix and directories inside it are visitable.
	assert.True(t, m.CanDescend("data"))
	assert.True(t, m.CanDescend("data/2024"))
	assert.True(t, m.CanDescend("data/2024/reports"))

	// Siblings outside the prefix are prunable.
	assert.False(t, m.CanDescend("data/2023"))
	assert.False(t, m.CanDescend("logs"))
}

func TestCanDescendFullWalk(t *testing.T) {
	m, err := New(Config{Includes: []string{"**/*.pdf"}})
	require.NoError(t, err)

	// An empty derived prefix means nothing can be pruned.
	assert.Equal(t, []string{""}, m.Prefixes())
	assert.True(t, m.CanDescend("anything/at/all"))
}

func TestCanDescendPartialSegment(t *testing.T) {
	m, err := New(Config{Includes: []string{"data/2024/**"}})
	require.NoError(t, err)

	// "data/20" looks like an ancestor string but is not a path ancestor;
	// trailing-slash comparison keeps segments whole.
	assert.False(t, m.CanDescend("data/20"))
}

func TestExcludePatternsAccessor(t *testing.T) {
	m, err := New(Config{
		Includes: []string{"**"},
		Excludes: []string{"**/*.bak"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"**/*.bak"}, m.ExcludePatterns())
}
