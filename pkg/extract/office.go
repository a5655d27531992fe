package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

// maxZipEntryBytes caps a single decompressed entry read from a packaged
// document or archive.
const maxZipEntryBytes = 64 << 20

// OLEWordAdapter extracts legacy .doc text via antiword, falling back to
// catdoc when antiword is not installed.
type OLEWordAdapter struct{}

func (OLEWordAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "antiword", []string{path})
	if errors.Is(err, execx.ErrToolNotFound) {
		out, err = execx.Output(ctx, "catdoc", []string{"-w", path})
	}
	if err != nil {
		return Result{}, fmt.Errorf("word extract: %w", err)
	}
	return Result{Text: flatten(string(out))}, nil
}

// OLEExcelAdapter extracts legacy .xls cell text via xls2csv.
type OLEExcelAdapter struct{}

func (OLEExcelAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "xls2csv", []string{path})
	if err != nil {
		return Result{}, fmt.Errorf("excel extract: %w", err)
	}
	return Result{Text: flatten(string(out))}, nil
}

// OLEPowerPointAdapter extracts legacy .ppt text via catppt.
type OLEPowerPointAdapter struct{}

func (OLEPowerPointAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "catppt", []string{path})
	if err != nil {
		return Result{}, fmt.Errorf("powerpoint extract: %w", err)
	}
	return Result{Text: flatten(string(out))}, nil
}

// PackagedOfficeAdapter reads zip-over-xml document formats in-process:
// OOXML (docx/xlsx/pptx), OpenDocument, and packaged Visio. Text comes from
// the format's XML content parts; when the text is sparse, embedded media
// is unpacked into a scratch dir for OCR re-entry.
type PackagedOfficeAdapter struct {
	opts Options

	// contentPrefixes selects the zip entries whose XML character data is
	// the document text.
	contentPrefixes []string

	// mediaPrefixes selects embedded image entries.
	mediaPrefixes []string
}

func newPackagedWord(opts Options) *PackagedOfficeAdapter {
	return &PackagedOfficeAdapter{
		opts:            opts,
		contentPrefixes: []string{"word/", "content.xml", "styles.xml"},
		mediaPrefixes:   []string{"word/media/", "Pictures/"},
	}
}

func newPackagedExcel(opts Options) *PackagedOfficeAdapter {
	return &PackagedOfficeAdapter{
		opts:            opts,
		contentPrefixes: []string{"xl/sharedStrings.xml", "xl/worksheets/", "content.xml"},
		mediaPrefixes:   []string{"xl/media/", "Pictures/"},
	}
}

func newPackagedPowerPoint(opts Options) *PackagedOfficeAdapter {
	return &PackagedOfficeAdapter{
		opts:            opts,
		contentPrefixes: []string{"ppt/slides/", "ppt/notesSlides/", "content.xml"},
		mediaPrefixes:   []string{"ppt/media/", "Pictures/"},
	}
}

func newPackagedVisio(opts Options) *PackagedOfficeAdapter {
	return &PackagedOfficeAdapter{
		opts:            opts,
		contentPrefixes: []string{"visio/pages/", "content.xml"},
		mediaPrefixes:   []string{"visio/media/", "Pictures/"},
	}
}

func (a *PackagedOfficeAdapter) Extract(_ context.Context, docPath string, sm *scratch.Manager) (Result, error) {
	zr, err := zip.OpenReader(docPath)
	if err != nil {
		return Result{}, fmt.Errorf("open packaged document: %w", err)
	}
	defer zr.Close()

	text := a.contentText(&zr.Reader)

	if a.opts.OCRDisabled || !a.opts.sparse(text) || !a.HasMedia(&zr.Reader) {
		return Result{Text: text}, nil
	}

	dir, err := a.ExtractMedia(&zr.Reader, sm, filepath.Base(docPath))
	if err != nil {
		// Media unpacking is best-effort; the text still stands.
		return Result{Text: text}, nil
	}
	return Result{Text: text, Scratch: dir}, nil
}

func (a *PackagedOfficeAdapter) contentText(zr *zip.Reader) string {
	var b strings.Builder
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if !strings.HasSuffix(name, ".xml") || !hasAnyPrefix(name, a.contentPrefixes) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		collectXMLText(io.LimitReader(rc, maxZipEntryBytes), &b)
		_ = rc.Close()
	}
	return flatten(b.String())
}

// HasMedia reports whether the package embeds any media entries.
func (a *PackagedOfficeAdapter) HasMedia(zr *zip.Reader) bool {
	for _, f := range zr.File {
		if hasAnyPrefix(path.Clean(f.Name), a.mediaPrefixes) && !f.FileInfo().IsDir() {
			return true
		}
	}
	return false
}

// ExtractMedia unpacks embedded media into a fresh scratch dir, capped at
// the configured image fan-out.
func (a *PackagedOfficeAdapter) ExtractMedia(zr *zip.Reader, sm *scratch.Manager, label string) (*scratch.Dir, error) {
	dir, err := sm.Acquire(label)
	if err != nil {
		return nil, err
	}

	extracted := 0
	for _, f := range zr.File {
		if extracted >= a.opts.MaxImages {
			break
		}
		name := path.Clean(f.Name)
		if !hasAnyPrefix(name, a.mediaPrefixes) || f.FileInfo().IsDir() {
			continue
		}
		if err := copyZipEntry(f, dir.Path()); err != nil {
			continue
		}
		extracted++
	}

	if extracted == 0 {
		dir.Release()
		return nil, errors.New("no media extracted")
	}
	return dir, nil
}

// collectXMLText appends every character-data token to b, separated by
// spaces.
func collectXMLText(r io.Reader, b *strings.Builder) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		if cd, ok := tok.(xml.CharData); ok {
			s := strings.TrimSpace(string(cd))
			if s != "" {
				b.WriteString(s)
				b.WriteByte(' ')
			}
		}
	}
}

// copyZipEntry writes one entry into dir under a flattened name. Flattening
// entry paths keeps extraction inside dir regardless of what the archive
// claims its layout is.
func copyZipEntry(f *zip.File, dir string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := os.Create(filepath.Join(dir, flattenEntryName(f.Name)))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, io.LimitReader(rc, maxZipEntryBytes))
	return err
}

// flattenEntryName maps an archive entry path to a single safe filename.
func flattenEntryName(name string) string {
	name = path.Clean(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		return "entry"
	}
	return name
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
