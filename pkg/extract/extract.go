// Package extract resolves files to document classes and turns them into
// plain text.
//
// A Registry maps detected MIME types (with extension and filename escape
// hatches for formats whose MIME is ambiguous) to one of a closed set of
// class tags, each backed by an Adapter. Adapters may shell out to external
// tools through pkg/execx or work in-process; either way they return
// CSV-friendly text and, for container-like formats, a scratch directory of
// nested files for the engine to re-enter.
package extract

import (
	"context"
	"strings"

	"github.com/3leaps/gotrawl/pkg/scratch"
)

// Class is a document class tag. The set is closed; unrecognized files fall
// back to ClassUnknown.
type Class string

const (
	ClassHTML       Class = "html"
	ClassText       Class = "text"
	ClassWord       Class = "word"
	ClassExcel      Class = "excel"
	ClassPowerPoint Class = "powerpoint"
	ClassVisio      Class = "visio"
	ClassPDF        Class = "pdf"
	ClassLnk        Class = "lnk"
	ClassExecutable Class = "executable"
	ClassImage      Class = "image"
	ClassAudio      Class = "audio"
	ClassVideo      Class = "video"
	ClassThumbsDB   Class = "thumbsdb"
	ClassArchive    Class = "archive"
	ClassPackage    Class = "package"
	ClassBytecode   Class = "bytecode"
	ClassWinEvent   Class = "winevent"
	ClassMessage    Class = "message"
	ClassSQLite     Class = "sqlite"
	ClassPCAP       Class = "pcap"
	ClassRaw        Class = "raw"
	ClassUnknown    Class = "unknown"
)

// TimeoutCategory selects the deadline band the engine applies to an
// adapter invocation. Adapters never see the concrete value.
type TimeoutCategory int

const (
	TimeoutDefault TimeoutCategory = iota
	TimeoutImage
	TimeoutAudio
)

// Result is an adapter's output: flattened text plus, for container-like
// formats, a scratch directory holding nested files. Ownership of the
// scratch dir passes to the caller, which must Release it.
type Result struct {
	Text    string
	Scratch *scratch.Dir
}

// Adapter turns one file into text. Implementations must not mutate engine
// state; external processes are spawned through pkg/execx so the caller's
// context deadline kills the whole process group.
type Adapter interface {
	Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error)
}

// Options carries the operator knobs shared across adapters.
type Options struct {
	// OCRLanguages is the ordered tesseract/pocketsphinx language list.
	OCRLanguages []string

	// SparseThreshold is the primary-text length under which media
	// expansion (embedded images, OCR) kicks in.
	SparseThreshold int

	// MaxImages caps per-document media extraction.
	MaxImages int

	// OCRDisabled skips all image OCR and media expansion.
	OCRDisabled bool

	// AudioDisabled skips audio transcription.
	AudioDisabled bool

	// ImagesDir, when set, receives a thumbnail of every processed image.
	ImagesDir string
}

// ApplyDefaults fills unset knobs.
func (o *Options) ApplyDefaults() {
	if len(o.OCRLanguages) == 0 {
		o.OCRLanguages = []string{"eng"}
	}
	if o.SparseThreshold == 0 {
		o.SparseThreshold = 100
	}
	if o.MaxImages == 0 {
		o.MaxImages = 8
	}
}

// flatten collapses all whitespace runs to single spaces and drops NULs,
// yielding the single-line text form adapters must return.
func flatten(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\x00", " ")
	return strings.Join(strings.Fields(s), " ")
}

// sparse reports whether primary text is short enough to justify media
// expansion.
func (o Options) sparse(text string) bool {
	return len(text) < o.SparseThreshold
}
