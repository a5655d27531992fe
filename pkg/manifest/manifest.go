// Package manifest provides loading and validation of gotrawl job manifests.
//
// A job manifest is a YAML or JSON file that configures a crawl job end to
// end: the root to walk, match predicates, extraction behavior, dedup, and
// session placement. CLI flags override manifest values.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown
// properties.
//
// Example manifest (YAML):
//
//	version: v1
//	root: smb/fs01/finance
//	workers: 8
//	match:
//	  includes:
//	    - "**/*.pdf"
//	  exclude_dirs:
//	    - ".snapshots"
//	dedupe:
//	  enabled: true
//	  hash: sha256
package manifest

// Manifest represents a validated job manifest.
//
// Required fields are Version and Root. Everything else is optional with
// defaults applied during loading.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.3leaps.dev/gotrawl/v1/job-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "v1".
	Version string `json:"version" yaml:"version"`

	// Root is the directory tree to crawl.
	Root string `json:"root" yaml:"root"`

	// Workers is the crawl worker count. Range: 1-32. Default: 4.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Output is the index CSV path. Empty derives the name from the root.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// RateLimit is the maximum dispatch rate in files per second
	// (0 = unlimited). Default: 0.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Match configures file filtering (optional).
	Match MatchConfig `json:"match,omitempty" yaml:"match,omitempty"`

	// Extract configures extraction behavior (optional).
	Extract ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Dedupe configures content-hash duplicate suppression (optional).
	Dedupe DedupeConfig `json:"dedupe,omitempty" yaml:"dedupe,omitempty"`

	// Session configures resume-state placement (optional).
	Session SessionConfig `json:"session,omitempty" yaml:"session,omitempty"`
}

// MatchConfig configures file filtering by glob patterns and metadata.
// All filters compose with AND semantics.
type MatchConfig struct {
	// Includes is a list of glob patterns for files to include.
	// Empty means every file is a candidate.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes is a list of glob patterns for files to exclude.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// ExcludeDirs is a list of path substrings; directories containing one
	// are pruned from discovery.
	ExcludeDirs []string `json:"exclude_dirs,omitempty" yaml:"exclude_dirs,omitempty"`

	// MinSize/MaxSize bound file sizes (inclusive).
	// Supports human-readable values: "1KB", "100MiB", "1GB".
	MinSize string `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize string `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// ModifiedAfter/ModifiedBefore bound modification times.
	// Dates are in ISO 8601 format: "2024-01-15" or "2024-01-15T10:30:00Z".
	ModifiedAfter  string `json:"modified_after,omitempty" yaml:"modified_after,omitempty"`
	ModifiedBefore string `json:"modified_before,omitempty" yaml:"modified_before,omitempty"`
}

// ExtractConfig configures extraction behavior.
type ExtractConfig struct {
	// CommandTimeoutSeconds is the default per-extractor deadline.
	// Default: 60. Image and audio adapters carry fixed class deadlines.
	CommandTimeoutSeconds int `json:"command_timeout_seconds,omitempty" yaml:"command_timeout_seconds,omitempty"`

	// MaxRecursionDepth bounds nested container expansion. 0 disables
	// expansion entirely. Default: 5.
	MaxRecursionDepth *int `json:"max_recursion_depth,omitempty" yaml:"max_recursion_depth,omitempty"`

	// OCR configures image text recognition.
	OCR OCRConfig `json:"ocr,omitempty" yaml:"ocr,omitempty"`

	// AudioDisabled skips audio transcription. Default: false.
	AudioDisabled bool `json:"audio_disabled,omitempty" yaml:"audio_disabled,omitempty"`

	// ImagesDir saves a resized copy of each encountered image under this
	// directory. Empty disables.
	ImagesDir string `json:"images_dir,omitempty" yaml:"images_dir,omitempty"`
}

// OCRConfig configures image text recognition.
type OCRConfig struct {
	// Languages is the ordered language list passed to the OCR engine.
	// Default: ["eng"].
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	// MinText is the sparse-text threshold: documents whose extracted text
	// is shorter re-enter OCR for embedded images. Default: 100.
	MinText int `json:"min_text,omitempty" yaml:"min_text,omitempty"`

	// MaxImages caps per-document OCR fan-out. Default: 8.
	MaxImages int `json:"max_images,omitempty" yaml:"max_images,omitempty"`

	// Disabled skips all image expansion. Default: false.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// DedupeConfig configures content-hash duplicate suppression.
type DedupeConfig struct {
	// Enabled turns dedup on. Default: false.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Hash selects the content hash: "md5", "sha1", or "sha256".
	// Default: "md5".
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// SessionConfig configures resume-state placement.
type SessionConfig struct {
	// Backend selects the session store: "sqlite" or "text".
	// Default: "sqlite". The text backend supports one worker only.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Path overrides the session file location. Empty derives a hidden
	// file next to the output.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "v1"

	// DefaultWorkers is the default crawl worker count.
	DefaultWorkers = 4

	// DefaultCommandTimeoutSeconds is the default per-extractor deadline.
	DefaultCommandTimeoutSeconds = 60

	// DefaultMaxRecursionDepth is the default nested expansion bound.
	DefaultMaxRecursionDepth = 5

	// DefaultOCRMinText is the default sparse-text threshold.
	DefaultOCRMinText = 100

	// DefaultOCRMaxImages is the default per-document OCR fan-out cap.
	DefaultOCRMaxImages = 8

	// DefaultDedupeHash is the default dedup content hash.
	DefaultDedupeHash = "md5"

	// DefaultSessionBackend is the default session store backend.
	DefaultSessionBackend = "sqlite"
)

// DefaultOCRLanguage is the default OCR language list.
var DefaultOCRLanguage = []string{"eng"}

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest so
// callers never reason about zero values.
func (m *Manifest) ApplyDefaults() {
	if m.Workers == 0 {
		m.Workers = DefaultWorkers
	}
	// RateLimit: 0 is a valid value (unlimited), so no default needed

	if m.Extract.CommandTimeoutSeconds == 0 {
		m.Extract.CommandTimeoutSeconds = DefaultCommandTimeoutSeconds
	}
	if m.Extract.MaxRecursionDepth == nil {
		depth := DefaultMaxRecursionDepth
		m.Extract.MaxRecursionDepth = &depth
	}
	if len(m.Extract.OCR.Languages) == 0 {
		m.Extract.OCR.Languages = append([]string(nil), DefaultOCRLanguage...)
	}
	if m.Extract.OCR.MinText == 0 {
		m.Extract.OCR.MinText = DefaultOCRMinText
	}
	if m.Extract.OCR.MaxImages == 0 {
		m.Extract.OCR.MaxImages = DefaultOCRMaxImages
	}

	if m.Dedupe.Hash == "" {
		m.Dedupe.Hash = DefaultDedupeHash
	}

	if m.Session.Backend == "" {
		m.Session.Backend = DefaultSessionBackend
	}
}

// MaxDepth returns the nested expansion bound, or the default when unset.
// 0 means expansion is disabled.
func (e *ExtractConfig) MaxDepth() int {
	if e.MaxRecursionDepth == nil {
		return DefaultMaxRecursionDepth
	}
	return *e.MaxRecursionDepth
}
