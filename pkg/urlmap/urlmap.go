// Package urlmap derives the logical URL recorded for each crawled file
// from the crawl root's protocol prefix.
//
// Roots that mirror a remote mount carry the protocol as their first path
// segment (for example smb/fs01/share). Files under such a root get a
// clickable URL with the mount segment replaced by a scheme; smb and nfs
// map to file:// so the URL opens in an OS file browser. Roots without a
// recognized prefix keep the raw physical path as the URL.
package urlmap

import (
	"path/filepath"
	"strings"
)

// schemes maps recognized protocol prefixes to the URL scheme emitted.
var schemes = map[string]string{
	"smb":   "file",
	"nfs":   "file",
	"ftp":   "ftp",
	"http":  "http",
	"https": "https",
}

// Mapper translates physical paths under one crawl root into logical URLs.
// It is immutable after construction and safe for concurrent use.
type Mapper struct {
	scheme string
	server string
	share  string
}

// ForRoot builds a Mapper from the crawl root path.
//
// The root's first segment selects the scheme; the second and third
// segments populate the server and share fields whether or not the prefix
// is recognized, so records from an unprefixed root still carry whatever
// positional information the path offers.
func ForRoot(root string) *Mapper {
	m := &Mapper{}
	segs := splitSegments(root)
	if len(segs) == 0 {
		return m
	}
	if scheme, ok := schemes[strings.ToLower(segs[0])]; ok {
		m.scheme = scheme
	}
	if len(segs) > 1 {
		m.server = segs[1]
	}
	if len(segs) > 2 {
		m.share = segs[2]
	}
	return m
}

// Recognized reports whether the root carried a known protocol prefix.
func (m *Mapper) Recognized() bool { return m.scheme != "" }

// Server returns the root's second path segment, or "".
func (m *Mapper) Server() string { return m.server }

// Share returns the root's third path segment, or "".
func (m *Mapper) Share() string { return m.share }

// URL maps a physical path under the root to its logical URL. With a
// recognized prefix, <protocol>/<rest> becomes <scheme>://<rest>; otherwise
// the cleaned physical path is returned unchanged.
func (m *Mapper) URL(physicalPath string) string {
	p := filepath.ToSlash(filepath.Clean(physicalPath))
	if m.scheme == "" {
		return p
	}
	rest := strings.TrimLeft(p, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[i+1:]
	} else {
		rest = ""
	}
	return m.scheme + "://" + rest
}

// NestedURL appends a child's basename to its parent's logical URL. Deeply
// nested children chain fragments, one per container level.
func (m *Mapper) NestedURL(parentURL, basename string) string {
	return parentURL + "#" + basename
}

// RootStem converts a crawl root into the flat name used for the run's
// artifacts: path separators become underscores, so root smb/fs01/share
// yields smb_fs01_share (CSV smb_fs01_share.csv, session
// .smb_fs01_share.session.db). Degenerate roots ("." or "/") map to "root".
func RootStem(root string) string {
	segs := splitSegments(root)
	if len(segs) == 0 {
		return "root"
	}
	return strings.Join(segs, "_")
}

// splitSegments returns the non-empty slash-separated segments of a cleaned
// path, ignoring any leading slash or dot.
func splitSegments(path string) []string {
	p := filepath.ToSlash(filepath.Clean(path))
	parts := strings.Split(p, "/")
	segs := make([]string, 0, len(parts))
	for _, s := range parts {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}
