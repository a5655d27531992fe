package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

// PDFAdapter extracts text via pdftotext. When the result is sparse the
// document's embedded images are pulled into a scratch dir so the engine
// can OCR them on re-entry.
type PDFAdapter struct {
	opts Options
}

func (a *PDFAdapter) Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "pdftotext", []string{"-q", "-enc", "UTF-8", path, "-"})
	if err != nil {
		return Result{}, fmt.Errorf("pdf extract: %w", err)
	}
	text := flatten(string(out))

	if a.opts.OCRDisabled || !a.opts.sparse(text) {
		return Result{Text: text}, nil
	}

	dir, err := a.extractImages(path, sm)
	if err != nil {
		// Image extraction is best-effort; sparse text still stands.
		return Result{Text: text}, nil
	}
	return Result{Text: text, Scratch: dir}, nil
}

func (a *PDFAdapter) extractImages(path string, sm *scratch.Manager) (*scratch.Dir, error) {
	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	if err := api.ExtractImagesFile(path, dir.Path(), nil, nil); err != nil {
		dir.Release()
		return nil, fmt.Errorf("pdf images: %w", err)
	}

	if err := trimDirTo(dir.Path(), a.opts.MaxImages); err != nil {
		dir.Release()
		return nil, err
	}
	entries, err := os.ReadDir(dir.Path())
	if err != nil || len(entries) == 0 {
		dir.Release()
		return nil, fmt.Errorf("pdf images: empty")
	}
	return dir, nil
}

// trimDirTo deletes entries past the fan-out cap, keeping directory order.
func trimDirTo(dir string, max int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if i < max {
			continue
		}
		_ = os.Remove(filepath.Join(dir, e.Name()))
	}
	return nil
}
