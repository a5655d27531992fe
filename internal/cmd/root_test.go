package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2026-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before init", func(t *testing.T) {
		// Save and restore
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		result := GetAppIdentity()
		assert.Nil(t, result)
	})

	t.Run("returns identity after set", func(t *testing.T) {
		// If appIdentity is already set from other tests, verify it returns
		if appIdentity != nil {
			result := GetAppIdentity()
			assert.NotNil(t, result)
			assert.Equal(t, appIdentity, result)
		}
	})
}

func TestExitCodeError(t *testing.T) {
	inner := errors.New("disk full")
	err := exitError(74, "Failed to write output", inner)

	t.Run("message and code in Error", func(t *testing.T) {
		assert.Contains(t, err.Error(), "Failed to write output")
		assert.Contains(t, err.Error(), "exit code 74")
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("unwraps to cause", func(t *testing.T) {
		assert.ErrorIs(t, err, inner)
	})

	t.Run("code recoverable via errors.As", func(t *testing.T) {
		var coded *exitCodeError
		require.True(t, errors.As(err, &coded))
		assert.Equal(t, 74, coded.code)
	})
}

func TestRootCommandTree(t *testing.T) {
	want := map[string]bool{
		"crawl":   false,
		"inspect": false,
		"doctor":  false,
		"index":   false,
		"serve":   false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "command %q not registered", name)
	}
}

func TestIndexCommandTree(t *testing.T) {
	want := map[string]bool{
		"init":   false,
		"import": false,
		"query":  false,
		"list":   false,
		"delete": false,
		"stats":  false,
		"drop":   false,
	}
	for _, c := range indexCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "index subcommand %q not registered", name)
	}
}
