package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionPath(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		root string
		want string
	}{
		{"relative root", ".", "smb/fs01/share", filepath.Join(".", ".smb_fs01_share.session.db")},
		{"absolute root", "/work", "/mnt/audit/fs01", filepath.Join("/work", ".mnt_audit_fs01.session.db")},
		{"trailing slash", "/work", "local/data/", filepath.Join("/work", ".local_data.session.db")},
		{"degenerate root", "/work", ".", filepath.Join("/work", ".root.session.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionPath(tt.dir, tt.root))
		})
	}
}

func TestDedupePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/work", ".smb_fs01_share.dedupe.db"),
		DedupePath("/work", "smb/fs01/share"))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("smb/fs01/share", "**/*")
	b := Fingerprint("smb/fs01/share", "**/*")
	c := Fingerprint("smb/fs01/share", "**/*.pdf")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)

	// Part boundaries matter.
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}
