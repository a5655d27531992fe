// Package crawler implements the bounded streaming pipeline that turns a
// directory tree into CSV index records.
//
// The crawler coordinates two stages:
//   - Discovery: streams candidate files from the walker over a bounded
//     channel (backpressure against huge trees)
//   - Workers: N goroutines, each running the full per-file pipeline
//     synchronously: claim → classify → dedup → extract → expand → emit
//
// Nested files produced by a container extraction are processed by the
// same worker, depth-first, before the parent's record is written. Claim
// is the only cross-worker coordination point: a path claimed in the
// session store is owned by exactly one worker, in this run or any
// earlier one sharing the store.
package crawler

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gotrawl/pkg/detect"
	"github.com/3leaps/gotrawl/pkg/extract"
	"github.com/3leaps/gotrawl/pkg/fswalk"
	"github.com/3leaps/gotrawl/pkg/match"
	"github.com/3leaps/gotrawl/pkg/output"
	"github.com/3leaps/gotrawl/pkg/scratch"
	"github.com/3leaps/gotrawl/pkg/session"
	"github.com/3leaps/gotrawl/pkg/urlmap"
)

// Fixed deadline bands for media extraction. The default band comes from
// configuration; these two are intentionally generous because OCR and
// speech-to-text are slow even on healthy hosts.
const (
	imageTimeout = 2 * time.Minute
	audioTimeout = 5 * time.Minute
)

// Config configures crawler behavior.
type Config struct {
	// Workers is the number of parallel extraction workers.
	// Default: 4
	Workers int

	// ChannelBuffer is the size of the bounded channel between discovery
	// and the workers. Larger buffers reduce blocking but increase memory
	// usage. Default: 1000
	ChannelBuffer int

	// MaxDepth bounds nested container expansion. A file discovered on
	// the filesystem is at depth 0; files taken from its scratch dir are
	// at depth 1, and so on. Negative disables expansion entirely.
	// Default: 5
	MaxDepth int

	// CommandTimeout is the deadline for extractor invocations in the
	// default band. Image and audio adapters use fixed wider bands.
	// Default: 60s
	CommandTimeout time.Duration

	// RateLimit is the maximum top-level file dispatches per second.
	// Zero means unlimited. Default: 0
	RateLimit float64

	// ProgressEvery controls how often a progress line is logged.
	// Default: 1000
	ProgressEvery int

	// DedupeEnabled turns on content-hash duplicate suppression. Requires
	// Deps.Dedupe.
	DedupeEnabled bool

	// DedupeHash selects the dedup digest. Default: md5
	DedupeHash session.HashAlgo
}

// DefaultConfig returns the default crawler configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		ChannelBuffer:  1000,
		MaxDepth:       5,
		CommandTimeout: 60 * time.Second,
		ProgressEvery:  1000,
		DedupeHash:     session.HashMD5,
	}
}

// Deps carries the crawler's collaborators. All fields except Dedupe are
// required.
type Deps struct {
	// Walker streams candidate regular files under the crawl root.
	Walker *fswalk.Walker

	// Sessions is the claimed-path set shared across runs and processes.
	Sessions session.Store

	// Dedupe is the content-hash set; nil unless dedup is enabled.
	Dedupe *session.DedupStore

	// Detector classifies files by MIME.
	Detector *detect.Detector

	// Registry resolves MIME types to classes and adapters.
	Registry *extract.Registry

	// Writer receives one record per emitted file.
	Writer output.Writer

	// Mapper derives logical URLs and server/share from the root.
	Mapper *urlmap.Mapper

	// Scratch owns temp dirs for container expansion.
	Scratch *scratch.Manager

	// Logger receives progress and per-file warnings.
	Logger *zap.Logger
}

// Summary contains aggregate statistics from a completed crawl.
type Summary struct {
	// FilesTotal is the number of candidate files dispatched to workers.
	FilesTotal int64

	// FilesProcessed is the number of records emitted after successful
	// extraction, nested files included.
	FilesProcessed int64

	// FilesSkipped counts files skipped because their path was already
	// claimed or their content hash was already seen.
	FilesSkipped int64

	// FilesError counts per-file failures. Each failed file still yields
	// a record with empty content.
	FilesError int64

	// NestedDropped counts nested files discarded by the depth bound or
	// a per-expansion fan-out cap.
	NestedDropped int64

	// Duration is the total time spent crawling.
	Duration time.Duration
}

// Crawler executes one crawl over a directory tree.
//
// Crawler is safe for single use only. Create a new Crawler for each run.
type Crawler struct {
	cfg  Config
	deps Deps

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	// Discovery estimate for progress lines; not a correctness input.
	estimate int64

	// Atomic counters for stats
	filesTotal     atomic.Int64
	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	filesError     atomic.Int64
	nestedDropped  atomic.Int64
}

// New creates a crawler. Zero Config fields take their defaults; missing
// dependencies are an error.
func New(cfg Config, deps Deps) (*Crawler, error) {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if cfg.DedupeHash == "" {
		cfg.DedupeHash = def.DedupeHash
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	switch {
	case deps.Walker == nil:
		return nil, errors.New("crawler: walker is required")
	case deps.Sessions == nil:
		return nil, errors.New("crawler: session store is required")
	case deps.Detector == nil:
		return nil, errors.New("crawler: detector is required")
	case deps.Registry == nil:
		return nil, errors.New("crawler: registry is required")
	case deps.Writer == nil:
		return nil, errors.New("crawler: writer is required")
	case deps.Mapper == nil:
		return nil, errors.New("crawler: url mapper is required")
	case deps.Scratch == nil:
		return nil, errors.New("crawler: scratch manager is required")
	case cfg.DedupeEnabled && deps.Dedupe == nil:
		return nil, errors.New("crawler: dedup enabled but no dedup store")
	}

	c := &Crawler{cfg: cfg, deps: deps}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// Run executes the crawl and returns summary statistics.
//
// Run blocks until discovery is exhausted, the context is cancelled, or a
// fatal error occurs. Per-file failures are never fatal: they are counted,
// logged at WARN, and the file's record is emitted with empty content.
// Fatal errors are limited to discovery failures (unreadable root) and
// index writer append failures.
//
// Cancellation is graceful: in-flight extractions are killed via their
// deadline contexts, workers stop consuming discovery, the writer is
// flushed, and a partial summary is returned alongside the context error.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	estimate, err := c.deps.Walker.Count(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return c.buildSummary(time.Since(start)), ctx.Err()
		}
		return nil, err
	}
	c.estimate = estimate

	c.deps.Logger.Info("crawl starting",
		zap.String("root", c.deps.Walker.Root()),
		zap.Int64("candidates", estimate),
		zap.Int("workers", c.cfg.Workers),
	)

	pipeErr := c.runPipeline(ctx)

	if err := c.deps.Writer.Flush(); err != nil {
		c.deps.Logger.Warn("final flush failed", zap.Error(err))
		if pipeErr == nil {
			pipeErr = err
		}
	}

	summary := c.buildSummary(time.Since(start))

	if pipeErr != nil {
		if errors.Is(pipeErr, context.Canceled) || errors.Is(pipeErr, context.DeadlineExceeded) {
			// Partial summary on cancellation.
			return summary, pipeErr
		}
		return nil, pipeErr
	}

	c.deps.Logger.Info("crawl complete",
		zap.Int64("processed", summary.FilesProcessed),
		zap.Int64("skipped", summary.FilesSkipped),
		zap.Int64("errors", summary.FilesError),
		zap.Int64("nested_dropped", summary.NestedDropped),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// buildSummary creates a Summary from the atomic counters.
func (c *Crawler) buildSummary(duration time.Duration) *Summary {
	return &Summary{
		FilesTotal:     c.filesTotal.Load(),
		FilesProcessed: c.filesProcessed.Load(),
		FilesSkipped:   c.filesSkipped.Load(),
		FilesError:     c.filesError.Load(),
		NestedDropped:  c.nestedDropped.Load(),
		Duration:       duration,
	}
}

// runPipeline orchestrates discovery and the worker pool.
func (c *Crawler) runPipeline(ctx context.Context) error {
	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	files := make(chan match.FileSummary, c.cfg.ChannelBuffer)

	// First fatal error from discovery or any worker.
	errCh := make(chan error, 1)
	fatal := func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(files)
		err := c.deps.Walker.Walk(pipeCtx, func(f match.FileSummary) error {
			select {
			case <-pipeCtx.Done():
				return pipeCtx.Err()
			case files <- f:
				return nil
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fatal(err)
		}
	}()

	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runWorker(pipeCtx, files, fatal)
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// runWorker consumes discovered files until the channel closes or the
// context is cancelled.
func (c *Crawler) runWorker(ctx context.Context, in <-chan match.FileSummary, fatal func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}

			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
			}

			n := c.filesTotal.Add(1)

			if err := c.processFile(ctx, f.Path); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					fatal(err)
				}
				return
			}

			if c.cfg.ProgressEvery > 0 && n%int64(c.cfg.ProgressEvery) == 0 {
				c.logProgress(n)
			}
		}
	}
}

// processFile claims one discovered path and runs the pipeline on it.
// Only writer failures propagate; everything else is a per-file event.
func (c *Crawler) processFile(ctx context.Context, path string) error {
	claimed, err := c.deps.Sessions.Claim(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.filesError.Add(1)
		c.deps.Logger.Warn("claim failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	if !claimed {
		c.filesSkipped.Add(1)
		c.deps.Logger.Debug("already claimed", zap.String("path", path))
		return nil
	}

	rec := &output.FileRecord{
		Timestamp:    time.Now().Unix(),
		LogicalURL:   c.deps.Mapper.URL(path),
		PhysicalPath: path,
		Server:       c.deps.Mapper.Server(),
		Share:        c.deps.Mapper.Share(),
		Extension:    extOf(path),
	}
	return c.pipeline(ctx, path, rec, 0)
}

// pipeline runs classify → dedup → extract → expand → emit for one
// readable file. readPath is the file actually read; rec already carries
// the identity fields (logical URL, physical path, server, share)
// resolved by the caller. depth is 0 for files discovered on the
// filesystem and grows with container nesting.
func (c *Crawler) pipeline(ctx context.Context, readPath string, rec *output.FileRecord, depth int) error {
	mime, err := c.deps.Detector.MIME(ctx, readPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Classification degrades: extension hatches may still match,
		// otherwise the unknown fallback handles the file.
		c.deps.Logger.Debug("mime detection failed", zap.String("path", readPath), zap.Error(err))
		mime = ""
	}
	entry := c.deps.Registry.Resolve(mime, readPath)
	rec.Class = string(entry.Class)

	if c.cfg.DedupeEnabled {
		skip, err := c.dedupeSkips(ctx, readPath, rec.PhysicalPath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.deps.Logger.Warn("dedup check failed", zap.String("path", readPath), zap.Error(err))
		} else if skip {
			c.filesSkipped.Add(1)
			c.deps.Logger.Debug("duplicate content", zap.String("path", readPath))
			return nil
		}
	}

	tctx, tcancel := context.WithTimeout(ctx, c.timeoutFor(entry))
	res, err := entry.Adapter.Extract(tctx, readPath, c.deps.Scratch)
	tcancel()

	if err != nil {
		// Timed-out or failed extraction is a full failure: any partial
		// scratch dir is discarded, never expanded.
		if res.Scratch != nil {
			_ = res.Scratch.Release()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.filesError.Add(1)
		c.deps.Logger.Warn("extraction failed",
			zap.String("path", readPath),
			zap.String("class", rec.Class),
			zap.Int("depth", depth),
			zap.Error(err),
		)
		return c.emit(ctx, rec)
	}

	rec.Content = output.SanitizeContent(res.Text)

	if res.Scratch != nil {
		if entry.Expands {
			if err := c.expand(ctx, res.Scratch.Path(), rec, entry, depth); err != nil {
				_ = res.Scratch.Release()
				return err
			}
		}
		if err := res.Scratch.Release(); err != nil {
			c.deps.Logger.Warn("scratch release failed", zap.String("path", readPath), zap.Error(err))
		}
	}

	// Parent record goes out only after every nested expansion returned.
	if err := c.emit(ctx, rec); err != nil {
		return err
	}
	c.filesProcessed.Add(1)
	return nil
}

// dedupeSkips hashes the file and claims the digest; a lost claim means
// identical content was already emitted under another path.
func (c *Crawler) dedupeSkips(ctx context.Context, readPath, firstPath string) (bool, error) {
	sum, err := session.HashFile(readPath, c.cfg.DedupeHash)
	if err != nil {
		return false, err
	}
	winner, err := c.deps.Dedupe.Claim(ctx, sum, firstPath)
	if err != nil {
		return false, err
	}
	return !winner, nil
}

// expand processes the regular files an extraction left in its scratch
// dir. Children run through the same pipeline at depth+1, on this
// worker, before the caller emits the parent. Files beyond the depth
// bound or the entry's fan-out cap are dropped and counted.
func (c *Crawler) expand(ctx context.Context, dir string, parent *output.FileRecord, entry extract.Entry, depth int) error {
	children, err := nestedFiles(dir)
	if err != nil {
		c.deps.Logger.Warn("nested enumeration failed",
			zap.String("parent", parent.LogicalURL),
			zap.Error(err),
		)
		return nil
	}
	if len(children) == 0 {
		return nil
	}

	allowed := len(children)
	if depth >= c.cfg.MaxDepth {
		allowed = 0
	} else if entry.FanOutCap > 0 && entry.FanOutCap < allowed {
		allowed = entry.FanOutCap
	}
	if dropped := len(children) - allowed; dropped > 0 {
		c.nestedDropped.Add(int64(dropped))
		c.deps.Logger.Warn("nested files dropped",
			zap.String("parent", parent.LogicalURL),
			zap.Int("dropped", dropped),
			zap.Int("depth", depth),
		)
	}

	for _, child := range children[:allowed] {
		if err := ctx.Err(); err != nil {
			return err
		}
		childRec := &output.FileRecord{
			Timestamp:    time.Now().Unix(),
			LogicalURL:   c.deps.Mapper.NestedURL(parent.LogicalURL, filepath.Base(child)),
			PhysicalPath: parent.PhysicalPath,
			Server:       parent.Server,
			Share:        parent.Share,
			Extension:    extOf(child),
		}
		if err := c.pipeline(ctx, child, childRec, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// emit writes one record. Writer failures are fatal to the run.
func (c *Crawler) emit(ctx context.Context, rec *output.FileRecord) error {
	return c.deps.Writer.WriteRecord(ctx, rec)
}

// timeoutFor maps an entry's deadline band to a concrete duration.
func (c *Crawler) timeoutFor(e extract.Entry) time.Duration {
	switch e.Timeout {
	case extract.TimeoutImage:
		return imageTimeout
	case extract.TimeoutAudio:
		return audioTimeout
	default:
		return c.cfg.CommandTimeout
	}
}

func (c *Crawler) logProgress(dispatched int64) {
	c.deps.Logger.Info("crawl progress",
		zap.Int64("dispatched", dispatched),
		zap.Int64("candidates", c.estimate),
		zap.Int64("processed", c.filesProcessed.Load()),
		zap.Int64("skipped", c.filesSkipped.Load()),
		zap.Int64("errors", c.filesError.Load()),
	)
}

// nestedFiles lists regular files under dir recursively, sorted for a
// deterministic expansion order.
func nestedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// extOf returns the lowercased extension without the dot.
func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
