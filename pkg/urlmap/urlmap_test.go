package urlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForRootRecognizedPrefixes(t *testing.T) {
	tests := []struct {
		root   string
		scheme string
		server string
		share  string
	}{
		{"smb/fs01/share", "file", "fs01", "share"},
		{"nfs/nas2/exports", "file", "nas2", "exports"},
		{"ftp/ftp.corp/pub", "ftp", "ftp.corp", "pub"},
		{"http/intranet/wiki", "http", "intranet", "wiki"},
		{"https/portal/docs", "https", "portal", "docs"},
		{"SMB/fs01/share", "file", "fs01", "share"},
	}
	for _, tt := range tests {
		m := ForRoot(tt.root)
		assert.True(t, m.Recognized(), tt.root)
		assert.Equal(t, tt.server, m.Server(), tt.root)
		assert.Equal(t, tt.share, m.Share(), tt.root)
	}
}

func TestForRootUnrecognizedPrefix(t *testing.T) {
	m := ForRoot("local/data/")
	assert.False(t, m.Recognized())
	assert.Equal(t, "data", m.Server())
	assert.Equal(t, "", m.Share())

	// Raw path passes through untouched.
	assert.Equal(t, "local/data/notes.txt", m.URL("local/data/notes.txt"))
}

func TestForRootAbsolutePath(t *testing.T) {
	m := ForRoot("/srv/mounts/fs01")
	assert.False(t, m.Recognized())
	assert.Equal(t, "mounts", m.Server())
	assert.Equal(t, "fs01", m.Share())
	assert.Equal(t, "/srv/mounts/fs01/a.txt", m.URL("/srv/mounts/fs01/a.txt"))
}

func TestURLMountedShare(t *testing.T) {
	m := ForRoot("smb/fs01/share")
	assert.Equal(t, "file://fs01/share/Finance/Q1.docx", m.URL("smb/fs01/share/Finance/Q1.docx"))
}

func TestURLKeepsRawSchemeForHTTP(t *testing.T) {
	m := ForRoot("https/portal/docs")
	assert.Equal(t, "https://portal/docs/guide.pdf", m.URL("https/portal/docs/guide.pdf"))
}

func TestURLCleansDotSegments(t *testing.T) {
	m := ForRoot("./smb/fs01/share")
	assert.True(t, m.Recognized())
	assert.Equal(t, "file://fs01/share/a.txt", m.URL("./smb/fs01/share/a.txt"))
}

func TestNestedURL(t *testing.T) {
	m := ForRoot("smb/fs01/share")
	parent := m.URL("smb/fs01/share/reports/bundle.zip")
	assert.Equal(t, "file://fs01/share/reports/bundle.zip#report.pdf",
		m.NestedURL(parent, "report.pdf"))

	// Fragments chain across container levels.
	inner := m.NestedURL(parent, "inner.zip")
	assert.Equal(t, "file://fs01/share/reports/bundle.zip#inner.zip#doc.pdf",
		m.NestedURL(inner, "doc.pdf"))
}

func TestRootStem(t *testing.T) {
	tests := []struct {
		root string
		want string
	}{
		{"smb/fs01/share", "smb_fs01_share"},
		{"local/data/", "local_data"},
		{"/srv/mounts/fs01", "srv_mounts_fs01"},
		{".", "root"},
		{"/", "root"},
		{"data", "data"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RootStem(tt.root), tt.root)
	}
}

func TestForRootShortRoots(t *testing.T) {
	m := ForRoot("data")
	assert.False(t, m.Recognized())
	assert.Equal(t, "", m.Server())
	assert.Equal(t, "", m.Share())

	m = ForRoot(".")
	assert.Equal(t, "", m.Server())
}
