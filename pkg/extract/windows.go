package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

// minStringRun is the shortest printable run worth keeping in string dumps.
const minStringRun = 4

// LnkAdapter scans Windows shortcut files for their embedded target paths
// and arguments. Shortcuts mix ASCII and UTF-16LE strings, so both runs are
// collected.
type LnkAdapter struct{}

func (LnkAdapter) Extract(_ context.Context, path string, _ *scratch.Manager) (Result, error) {
	raw, err := readBounded(path, maxTextBytes)
	if err != nil {
		return Result{}, fmt.Errorf("lnk extract: %w", err)
	}

	ascii := printableRuns(raw, minStringRun)
	wide := utf16Runs(raw, minStringRun)
	return Result{Text: flatten(strings.Join(append(ascii, wide...), " "))}, nil
}

// ExecutableAdapter dumps printable string runs from PE/ELF binaries.
type ExecutableAdapter struct{}

func (ExecutableAdapter) Extract(_ context.Context, path string, _ *scratch.Manager) (Result, error) {
	raw, err := readBounded(path, maxTextBytes)
	if err != nil {
		return Result{}, fmt.Errorf("executable extract: %w", err)
	}
	return Result{Text: flatten(strings.Join(printableRuns(raw, minStringRun), " "))}, nil
}

// ThumbsDBAdapter unpacks Thumbs.db thumbnail streams into scratch via 7z
// so the engine can OCR them on re-entry.
type ThumbsDBAdapter struct{}

func (ThumbsDBAdapter) Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error) {
	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return Result{}, err
	}

	_, err = execx.Run(ctx, "7z", []string{"e", "-y", "-o" + dir.Path(), path})
	if err != nil {
		dir.Release()
		return Result{}, fmt.Errorf("thumbsdb extract: %w", err)
	}

	names, err := listDirNames(dir.Path())
	if err != nil || len(names) == 0 {
		dir.Release()
		return Result{}, fmt.Errorf("thumbsdb extract: no streams")
	}
	return Result{Text: flatten(strings.Join(names, " ")), Scratch: dir}, nil
}

// EvtxAdapter dumps Windows event logs as JSON lines via evtx_dump.
type EvtxAdapter struct{}

func (EvtxAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "evtx_dump", []string{"-o", "jsonl", path})
	if err != nil {
		return Result{}, fmt.Errorf("evtx extract: %w", err)
	}
	return Result{Text: flatten(string(out))}, nil
}

// MsgAdapter normalizes Outlook .msg files into RFC 822 form inside a
// scratch dir; the converted message is then processed by the message
// adapter on re-entry.
type MsgAdapter struct{}

func (MsgAdapter) Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error) {
	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return Result{}, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outfile := filepath.Join(dir.Path(), base+".eml")
	_, err = execx.Run(ctx, "msgconvert", []string{"--outfile", outfile, path})
	if err != nil {
		dir.Release()
		return Result{}, fmt.Errorf("msg convert: %w", err)
	}
	if _, err := os.Stat(outfile); err != nil {
		dir.Release()
		return Result{}, fmt.Errorf("msg convert: no output")
	}
	return Result{Scratch: dir}, nil
}

// readBounded reads at most max bytes of path.
func readBounded(path string, max int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, max))
}

// printableRuns collects ASCII printable runs of at least min bytes.
func printableRuns(raw []byte, minLen int) []string {
	var runs []string
	start := -1
	for i, c := range raw {
		if c >= 0x20 && c < 0x7f {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			runs = append(runs, string(raw[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(raw)-start >= minLen {
		runs = append(runs, string(raw[start:]))
	}
	return runs
}

// utf16Runs collects UTF-16LE runs of printable ASCII code units of at
// least min characters.
func utf16Runs(raw []byte, minLen int) []string {
	var runs []string
	var cur []byte
	for i := 0; i+1 < len(raw); i += 2 {
		c, hi := raw[i], raw[i+1]
		if hi == 0 && c >= 0x20 && c < 0x7f {
			cur = append(cur, c)
			continue
		}
		if len(cur) >= minLen {
			runs = append(runs, string(cur))
		}
		cur = cur[:0]
	}
	if len(cur) >= minLen {
		runs = append(runs, string(cur))
	}
	return runs
}

func listDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
