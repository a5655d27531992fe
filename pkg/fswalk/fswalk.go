// Package fswalk enumerates the regular files under a crawl root.
//
// Discovery is error-tolerant: unreadable directories are logged and
// skipped, never fatal. Symbolic links are recorded as neither files nor
// directories and are not followed, so link cycles cannot trap the walk.
package fswalk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/gotrawl/pkg/match"
)

// Sentinel errors for root validation.
var (
	ErrRootNotFound = errors.New("crawl root not found")
	ErrRootNotDir   = errors.New("crawl root is not a directory")
)

// WalkError wraps a discovery failure with the path it occurred on.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error { return e.Err }

// Options configures a Walker. All fields are optional.
type Options struct {
	// Matcher applies include/exclude glob patterns and hidden-file
	// policy. Nil means every regular file is eligible.
	Matcher *match.Matcher

	// Filter applies size/date/regex predicates to eligible files.
	Filter *match.CompositeFilter

	// ExcludeDirs are substrings; any directory or file whose path
	// contains one is skipped (directories prune their whole subtree).
	ExcludeDirs []string

	// Logger receives WARN entries for unreadable subtrees.
	Logger *zap.Logger
}

// Walker streams discovered files to a callback.
type Walker struct {
	root        string
	matcher     *match.Matcher
	filter      *match.CompositeFilter
	excludeDirs []string
	logger      *zap.Logger
}

// New validates the root and builds a Walker. The root is cleaned once so
// every emitted path is in canonical form.
func New(root string, opts Options) (*Walker, error) {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &WalkError{Path: root, Err: ErrRootNotFound}
		}
		return nil, &WalkError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &WalkError{Path: root, Err: ErrRootNotDir}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Walker{
		root:        root,
		matcher:     opts.Matcher,
		filter:      opts.Filter,
		excludeDirs: opts.ExcludeDirs,
		logger:      logger,
	}, nil
}

// Root returns the cleaned crawl root.
func (w *Walker) Root() string { return w.root }

// Walk streams every eligible file to fn in directory order. A non-nil
// error from fn aborts the walk and is returned unchanged; discovery
// errors never abort.
func (w *Walker) Walk(ctx context.Context, fn func(f match.FileSummary) error) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		slashed := match.NormalizePath(path)

		if d.IsDir() {
			if path != w.root {
				if w.excludedDir(slashed) {
					return fs.SkipDir
				}
				if w.matcher != nil && !w.matcher.CanDescend(slashed) {
					return fs.SkipDir
				}
				if w.matcher != nil && !w.matcher.IncludesHidden() && match.IsHidden(slashed) {
					return fs.SkipDir
				}
			}
			return nil
		}

		// Symlinks and specials are not followed.
		if !d.Type().IsRegular() {
			return nil
		}

		if w.excludedPath(slashed) {
			return nil
		}
		if w.matcher != nil && !w.matcher.Match(slashed) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.logger.Warn("skipping unstatable file", zap.String("path", path), zap.Error(err))
			return nil
		}

		summary := match.FileSummary{
			Path:    slashed,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if w.filter != nil && !w.filter.Match(&summary) {
			return nil
		}

		return fn(summary)
	})
}

// Count walks the tree once and returns how many files Walk would emit.
// Used for progress totals before the crawl starts.
func (w *Walker) Count(ctx context.Context) (int64, error) {
	var n int64
	err := w.Walk(ctx, func(match.FileSummary) error {
		n++
		return nil
	})
	return n, err
}

func (w *Walker) excludedDir(dir string) bool {
	return containsAny(match.EnsureTrailingSlash(dir), w.excludeDirs)
}

func (w *Walker) excludedPath(path string) bool {
	return containsAny(path, w.excludeDirs)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
