//go:build unix

package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextStoreLockConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.session.txt")

	s1, err := OpenText(path)
	require.NoError(t, err)
	defer s1.Close()

	_, err = OpenText(path)
	assert.ErrorIs(t, err, ErrStoreLocked)
}

func TestTextStoreLockReleasedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.session.txt")

	s1, err := OpenText(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenText(path)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}
