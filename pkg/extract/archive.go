package extract

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

// maxArchiveTotalBytes caps the total payload unpacked from one container.
// Entries past the cap are listed but not extracted.
const maxArchiveTotalBytes = 512 << 20

// ZipArchiveAdapter lists and unpacks zip-family containers (zip, jar)
// in-process. The record text is the entry listing; payload goes to
// scratch for nested processing.
type ZipArchiveAdapter struct{}

func (ZipArchiveAdapter) Extract(_ context.Context, path string, sm *scratch.Manager) (Result, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Result{}, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return Result{}, err
	}

	names := make([]string, 0, len(zr.File))
	used := make(map[string]bool)
	var total int64
	extracted := 0

	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.FileInfo().IsDir() || total >= maxArchiveTotalBytes {
			continue
		}
		target := uniqueName(used, flattenEntryName(f.Name))
		n, err := writeZipEntry(f, filepath.Join(dir.Path(), target))
		if err != nil {
			continue
		}
		total += n
		extracted++
	}

	if extracted == 0 {
		dir.Release()
		dir = nil
	}
	return Result{Text: flatten(strings.Join(names, " ")), Scratch: dir}, nil
}

// TarArchiveAdapter lists and unpacks tar containers in-process.
type TarArchiveAdapter struct{}

func (TarArchiveAdapter) Extract(_ context.Context, path string, sm *scratch.Manager) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open tar: %w", err)
	}
	defer f.Close()

	return unpackTar(tar.NewReader(f), filepath.Base(path), sm)
}

// GzipAdapter handles gzip streams: a gzipped tar is unpacked as a tar,
// anything else is decompressed into scratch as a single nested file.
type GzipAdapter struct{}

func (GzipAdapter) Extract(_ context.Context, path string, sm *scratch.Manager) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open gzip: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Result{}, fmt.Errorf("read gzip: %w", err)
	}
	defer gz.Close()

	br := bufio.NewReader(gz)
	head, _ := br.Peek(512)
	if isTarStream(head) {
		return unpackTar(tar.NewReader(br), filepath.Base(path), sm)
	}

	// Single compressed file.
	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return Result{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".gz")
	if name == filepath.Base(path) || name == "" {
		name = "decompressed"
	}
	dst, err := os.Create(filepath.Join(dir.Path(), name))
	if err != nil {
		dir.Release()
		return Result{}, fmt.Errorf("write gzip payload: %w", err)
	}
	_, copyErr := io.Copy(dst, io.LimitReader(br, maxArchiveTotalBytes))
	_ = dst.Close()
	if copyErr != nil {
		dir.Release()
		return Result{}, fmt.Errorf("write gzip payload: %w", copyErr)
	}
	return Result{Text: flatten(name), Scratch: dir}, nil
}

// SevenZipAdapter drives the 7z tool for container formats without an
// in-process reader: rar, 7z, cab, msi, and the rpm/deb package formats.
type SevenZipAdapter struct{}

func (SevenZipAdapter) Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error) {
	listing, err := execx.Output(ctx, "7z", []string{"l", "-ba", path})
	if err != nil {
		return Result{}, fmt.Errorf("archive list: %w", err)
	}
	text := flatten(string(listing))

	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return Result{Text: text}, nil
	}
	if _, err := execx.Run(ctx, "7z", []string{"e", "-y", "-aou", "-o" + dir.Path(), path}); err != nil {
		dir.Release()
		return Result{Text: text}, nil
	}

	names, err := listDirNames(dir.Path())
	if err != nil || len(names) == 0 {
		dir.Release()
		return Result{Text: text}, nil
	}
	return Result{Text: text, Scratch: dir}, nil
}

func unpackTar(tr *tar.Reader, label string, sm *scratch.Manager) (Result, error) {
	dir, err := sm.Acquire(label)
	if err != nil {
		return Result{}, err
	}

	var names []string
	used := make(map[string]bool)
	var total int64
	extracted := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Truncated archives keep whatever was unpacked so far.
			break
		}
		names = append(names, hdr.Name)
		if hdr.Typeflag != tar.TypeReg || total >= maxArchiveTotalBytes {
			continue
		}

		target := uniqueName(used, flattenEntryName(hdr.Name))
		dst, err := os.Create(filepath.Join(dir.Path(), target))
		if err != nil {
			continue
		}
		n, copyErr := io.Copy(dst, io.LimitReader(tr, maxZipEntryBytes))
		_ = dst.Close()
		if copyErr != nil {
			continue
		}
		total += n
		extracted++
	}

	if extracted == 0 {
		dir.Release()
		dir = nil
	}
	return Result{Text: flatten(strings.Join(names, " ")), Scratch: dir}, nil
}

func writeZipEntry(f *zip.File, target string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	dst, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	return io.Copy(dst, io.LimitReader(rc, maxZipEntryBytes))
}

// uniqueName disambiguates flattened entry names within one scratch dir.
func uniqueName(used map[string]bool, name string) string {
	if !used[name] {
		used[name] = true
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%d_%s", i, name)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// isTarStream sniffs the ustar magic at offset 257.
func isTarStream(head []byte) bool {
	return len(head) >= 262 && string(head[257:262]) == "ustar"
}
