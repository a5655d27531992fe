package extract

import (
	"path/filepath"
	"strings"

	"github.com/3leaps/gotrawl/pkg/detect"
)

// Entry binds a set of MIME substring patterns (plus extension and filename
// escape hatches) to a class, an adapter, a timeout category, and the
// expansion flags the engine enforces.
type Entry struct {
	Class Class

	// MIMEContains patterns match as substrings of the normalized MIME.
	MIMEContains []string

	// Extensions and Filenames catch formats whose MIME is ambiguous.
	// Both are compared lowercase.
	Extensions []string
	Filenames  []string

	Adapter Adapter
	Timeout TimeoutCategory

	// Expands marks adapters that may populate a scratch dir.
	Expands bool

	// SparseOnly limits expansion to documents whose primary text came in
	// under the sparse-text threshold.
	SparseOnly bool

	// FanOutCap bounds nested files taken from one expansion; 0 means
	// unbounded.
	FanOutCap int
}

// Registry resolves detected MIME types to classes and adapters. Entries
// are matched in declaration order; the first hit wins and unmatched files
// fall back to the unknown entry.
type Registry struct {
	entries  []Entry
	fallback Entry
}

// NewRegistry builds the standard classification table.
func NewRegistry(opts Options, det *detect.Detector) *Registry {
	opts.ApplyDefaults()

	archiveTool := SevenZipAdapter{}

	entries := []Entry{
		{
			Class:        ClassHTML,
			MIMEContains: []string{"text/html", "xhtml"},
			Adapter:      HTMLAdapter{},
		},
		{
			Class:        ClassWord,
			MIMEContains: []string{"officedocument.wordprocessingml", "opendocument.text"},
			Adapter:      newPackagedWord(opts),
			Expands:      true,
			SparseOnly:   true,
			FanOutCap:    opts.MaxImages,
		},
		{
			Class:        ClassExcel,
			MIMEContains: []string{"officedocument.spreadsheetml", "opendocument.spreadsheet"},
			Adapter:      newPackagedExcel(opts),
			Expands:      true,
			SparseOnly:   true,
			FanOutCap:    opts.MaxImages,
		},
		{
			Class:        ClassPowerPoint,
			MIMEContains: []string{"officedocument.presentationml", "opendocument.presentation"},
			Adapter:      newPackagedPowerPoint(opts),
			Expands:      true,
			SparseOnly:   true,
			FanOutCap:    opts.MaxImages,
		},
		{
			Class:        ClassVisio,
			MIMEContains: []string{"visio"},
			Extensions:   []string{".vsdx", ".vsd"},
			Adapter:      newPackagedVisio(opts),
			Expands:      true,
			SparseOnly:   true,
			FanOutCap:    opts.MaxImages,
		},
		{
			Class:        ClassWord,
			MIMEContains: []string{"msword"},
			Adapter:      OLEWordAdapter{},
		},
		{
			Class:        ClassExcel,
			MIMEContains: []string{"ms-excel", "msexcel"},
			Adapter:      OLEExcelAdapter{},
		},
		{
			Class:        ClassPowerPoint,
			MIMEContains: []string{"ms-powerpoint"},
			Adapter:      OLEPowerPointAdapter{},
		},
		{
			Class:        ClassPDF,
			MIMEContains: []string{"pdf"},
			Adapter:      &PDFAdapter{opts: opts},
			Expands:      true,
			SparseOnly:   true,
			FanOutCap:    opts.MaxImages,
		},
		{
			Class:        ClassMessage,
			MIMEContains: []string{"vnd.ms-outlook"},
			Extensions:   []string{".msg"},
			Adapter:      MsgAdapter{},
			Expands:      true,
		},
		{
			Class:        ClassMessage,
			MIMEContains: []string{"message/rfc822"},
			Extensions:   []string{".eml"},
			Adapter:      MessageAdapter{},
			Expands:      true,
		},
		{
			Class:        ClassWinEvent,
			MIMEContains: []string{"evtx"},
			Extensions:   []string{".evtx"},
			Adapter:      EvtxAdapter{},
		},
		{
			Class:        ClassLnk,
			MIMEContains: []string{"ms-shortcut"},
			Extensions:   []string{".lnk"},
			Adapter:      LnkAdapter{},
		},
		{
			Class:     ClassThumbsDB,
			Filenames: []string{"thumbs.db"},
			Adapter:   ThumbsDBAdapter{},
			Expands:   true,
			FanOutCap: opts.MaxImages,
		},
		{
			Class: ClassExecutable,
			MIMEContains: []string{
				"x-elf", "x-executable", "x-sharedlib", "x-pie-executable",
				"x-mach-binary", "portable-executable", "x-msdownload", "dosexec",
			},
			Adapter: ExecutableAdapter{},
		},
		{
			Class:        ClassImage,
			MIMEContains: []string{"image/"},
			Adapter:      &ImageAdapter{opts: opts},
			Timeout:      TimeoutImage,
		},
		{
			Class:        ClassAudio,
			MIMEContains: []string{"audio/"},
			Adapter:      &AudioAdapter{opts: opts},
			Timeout:      TimeoutAudio,
		},
		{
			Class:        ClassVideo,
			MIMEContains: []string{"video/"},
			Adapter:      &VideoAdapter{opts: opts},
			Timeout:      TimeoutAudio,
			Expands:      true,
		},
		{
			Class:        ClassSQLite,
			MIMEContains: []string{"sqlite"},
			Adapter:      SQLiteDumpAdapter{},
		},
		{
			Class:        ClassPCAP,
			MIMEContains: []string{"pcap"},
			Extensions:   []string{".pcap", ".pcapng"},
			Adapter:      PCAPAdapter{},
		},
		{
			Class:        ClassBytecode,
			MIMEContains: []string{"python-code", "bytecode.python"},
			Extensions:   []string{".pyc", ".pyo"},
			Adapter:      BytecodeAdapter{},
		},
		{
			Class:        ClassPackage,
			MIMEContains: []string{"rpm", "debian"},
			Adapter:      archiveTool,
			Expands:      true,
		},
		// gzip before the generic zip pattern: "application/gzip"
		// contains "zip" but needs the stream reader.
		{
			Class:        ClassArchive,
			MIMEContains: []string{"gzip"},
			Adapter:      GzipAdapter{},
			Expands:      true,
		},
		{
			Class:        ClassArchive,
			MIMEContains: []string{"tar"},
			Adapter:      TarArchiveAdapter{},
			Expands:      true,
		},
		{
			Class:        ClassArchive,
			MIMEContains: []string{"zip", "java-archive", "jar"},
			Adapter:      ZipArchiveAdapter{},
			Expands:      true,
		},
		{
			Class:        ClassArchive,
			MIMEContains: []string{"rar", "compressed", "msi", "ms-installer", "x-archive"},
			Adapter:      archiveTool,
			Expands:      true,
		},
		{
			Class: ClassText,
			MIMEContains: []string{
				"text/", "json", "xml", "javascript", "yaml", "csv", "x-empty",
			},
			Adapter: TextAdapter{},
		},
		{
			Class:        ClassRaw,
			MIMEContains: []string{"octet-stream"},
			Adapter:      RawAdapter{},
		},
	}

	return &Registry{
		entries: entries,
		fallback: Entry{
			Class:   ClassUnknown,
			Adapter: &UnknownAdapter{det: det},
		},
	}
}

// Resolve returns the first entry matching the normalized MIME, extension,
// or basename, falling back to the unknown entry.
func (r *Registry) Resolve(mime, path string) Entry {
	mime = strings.ToLower(mime)
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))

	for _, e := range r.entries {
		if e.matches(mime, ext, base) {
			return e
		}
	}
	return r.fallback
}

// Fallback returns the unknown entry.
func (r *Registry) Fallback() Entry {
	return r.fallback
}

// Entries returns the table in match order.
func (r *Registry) Entries() []Entry {
	return r.entries
}

func (e Entry) matches(mime, ext, base string) bool {
	for _, f := range e.Filenames {
		if base == f {
			return true
		}
	}
	for _, x := range e.Extensions {
		if ext == x {
			return true
		}
	}
	if mime == "" {
		return false
	}
	for _, pat := range e.MIMEContains {
		if strings.Contains(mime, pat) {
			return true
		}
	}
	return false
}

// ExternalTools lists every third-party executable the adapters may invoke,
// in rough pipeline order. Used by environment checks.
func ExternalTools() []string {
	return []string{
		"file",
		"pdftotext",
		"tesseract",
		"7z",
		"antiword",
		"catdoc",
		"xls2csv",
		"catppt",
		"msgconvert",
		"evtx_dump",
		"tcpdump",
		"ffmpeg",
		"ffprobe",
		"pocketsphinx_continuous",
		"python3",
	}
}
