// Package output appends crawl results to the run's CSV index file.
//
// Every emitted row has exactly eight fields: a bare epoch-seconds
// timestamp followed by seven always-quoted fields. Interior double quotes
// are doubled; carriage returns, newlines, and NULs never survive
// encoding, and the content field additionally sheds commas, so one row is
// always one line and downstream CSV readers see a fixed shape.
package output

import (
	"errors"
	"strconv"
	"strings"
)

// FileRecord is one crawl result row.
type FileRecord struct {
	// Timestamp is the run timestamp in Unix seconds (field 1, unquoted).
	Timestamp int64

	// LogicalURL is the clickable URL derived from the crawl root's
	// protocol prefix; nested files carry #basename fragments.
	LogicalURL string

	// PhysicalPath is the on-disk path that was read. For nested files
	// this is the containing document's path.
	PhysicalPath string

	// Server and Share come from the root's second and third segments.
	Server string
	Share  string

	// Extension is the lowercased filename extension without the dot.
	Extension string

	// Class is the classification tag assigned by the extractor registry.
	Class string

	// Content is the extracted text, already newline-free.
	Content string
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")

	// ErrOutputLocked is returned when another process holds the output
	// file's exclusive lock.
	ErrOutputLocked = errors.New("output file is locked by another process")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "open", "write", "lock")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// encodeRow renders a record as one CSV line. Field 1 is bare; fields 2-8
// are always double-quoted with interior quotes doubled.
func encodeRow(rec *FileRecord) []byte {
	var b strings.Builder
	b.Grow(96 + len(rec.LogicalURL) + len(rec.PhysicalPath) + len(rec.Content))

	b.WriteString(strconv.FormatInt(rec.Timestamp, 10))
	writeQuoted(&b, SanitizeField(rec.LogicalURL))
	writeQuoted(&b, SanitizeField(rec.PhysicalPath))
	writeQuoted(&b, SanitizeField(rec.Server))
	writeQuoted(&b, SanitizeField(rec.Share))
	writeQuoted(&b, SanitizeField(rec.Extension))
	writeQuoted(&b, SanitizeField(rec.Class))
	writeQuoted(&b, SanitizeContent(rec.Content))
	b.WriteByte('\n')

	return []byte(b.String())
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte(',')
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(s, `"`, `""`))
	b.WriteByte('"')
}

// SanitizeField removes the control bytes that would break one-row-per-line
// framing. Commas survive; the field is quoted.
func SanitizeField(s string) string {
	if !strings.ContainsAny(s, "\r\n\x00") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', 0:
			return -1
		}
		return r
	}, s)
}

// SanitizeContent prepares extracted text for the content field: commas,
// CRs, LFs, and NULs become spaces, and whitespace runs collapse to a
// single space.
func SanitizeContent(s string) string {
	if s == "" {
		return ""
	}
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case ',', '\r', '\n', 0:
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(replaced), " ")
}
