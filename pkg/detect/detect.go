// Package detect classifies files by MIME type for the extractor registry.
//
// Detection is in-process via content sniffing, with the system file(1)
// tool as a fallback for bytes the sniffer cannot place. Classification
// failures are soft: callers degrade the file to the unknown class rather
// than failing the crawl.
package detect

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/3leaps/gotrawl/pkg/execx"
)

// OctetStream is the MIME type of content nothing could classify.
const OctetStream = "application/octet-stream"

// sniffLimit bounds how many leading bytes the in-process sniffer reads.
const sniffLimit = 3072

func init() {
	mimetype.SetLimit(sniffLimit)
}

// Detector resolves MIME types for physical paths.
type Detector struct {
	fileTool string
}

// New builds a Detector, probing PATH once for the file(1) tool.
func New() *Detector {
	d := &Detector{}
	if path, err := execx.LookPath("file"); err == nil {
		d.fileTool = path
	}
	return d
}

// HasFileTool reports whether the file(1) fallback is available.
func (d *Detector) HasFileTool() bool { return d.fileTool != "" }

// MIME returns the detected MIME type of path, without parameters. When the
// sniffer answers octet-stream and file(1) is available, the tool gets the
// final word; its magic database covers formats the sniffer does not.
func (d *Detector) MIME(ctx context.Context, path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	mime := normalize(mtype.String())

	if mime == OctetStream && d.fileTool != "" {
		if viaTool, terr := d.fileMIME(ctx, path); terr == nil && viaTool != "" {
			return viaTool, nil
		}
	}
	return mime, nil
}

// IsText reports whether path holds decodable text. Used by the unknown
// fallback to decide between plain-content and empty records.
func (d *Detector) IsText(ctx context.Context, path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	// The sniffer says binary; file(1) may still recognize a text dialect.
	if d.fileTool != "" {
		if mime, err := d.fileMIME(ctx, path); err == nil {
			return strings.HasPrefix(mime, "text/")
		}
	}
	return false
}

func (d *Detector) fileMIME(ctx context.Context, path string) (string, error) {
	out, err := execx.Output(ctx, d.fileTool, []string{"--brief", "--mime-type", "--", path})
	if err != nil {
		return "", err
	}
	return normalize(string(out)), nil
}

// normalize strips parameters and whitespace from a MIME string.
func normalize(mime string) string {
	mime = strings.TrimSpace(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return strings.ToLower(mime)
}
