package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/internal/observability"
	"github.com/3leaps/gotrawl/pkg/crawler"
	"github.com/3leaps/gotrawl/pkg/detect"
	"github.com/3leaps/gotrawl/pkg/extract"
	"github.com/3leaps/gotrawl/pkg/fswalk"
	"github.com/3leaps/gotrawl/pkg/manifest"
	"github.com/3leaps/gotrawl/pkg/match"
	"github.com/3leaps/gotrawl/pkg/output"
	"github.com/3leaps/gotrawl/pkg/scratch"
	"github.com/3leaps/gotrawl/pkg/session"
	"github.com/3leaps/gotrawl/pkg/urlmap"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [ROOT]",
	Short: "Crawl a directory tree into a CSV text index",
	Long: `Walk every regular file under ROOT, extract its text, and append one
CSV record per file. Container formats (archives, documents with embedded
media, mail) are expanded and their payloads indexed as nested records.

ROOT may be omitted when --manifest supplies one. CLI flags override
manifest values; the manifest overrides the ambient configuration.

A hidden session database next to the output records every claimed path,
so an interrupted crawl resumes where it stopped. Delete the session file
to force a full re-crawl.

Example:
  gotrawl crawl smb/fs01/finance
  gotrawl crawl smb/fs01/finance --include "**/*.pdf" --workers 8
  gotrawl crawl --manifest job.yaml
  gotrawl crawl smb/fs01/finance --dedupe --dedupe-hash sha256
  gotrawl crawl smb/fs01/finance --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

var (
	crawlWorkers        int
	crawlOutput         string
	crawlManifestPath   string
	crawlIncludes       []string
	crawlExcludes       []string
	crawlExcludeDirs    []string
	crawlMinSize        string
	crawlMaxSize        string
	crawlModifiedAfter  string
	crawlModifiedBefore string
	crawlDedupe         bool
	crawlDedupeHash     string
	crawlSessionBackend string
	crawlRateLimit      float64
	crawlDryRun         bool
)

func init() {
	rootCmd.AddCommand(crawlCmd)
	registerCrawlFlags(crawlCmd)
}

func registerCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&crawlWorkers, "workers", "w", 0, "Parallel extraction workers (default from config)")
	cmd.Flags().StringVarP(&crawlOutput, "output", "o", "", "Output CSV path (default derived from ROOT)")
	cmd.Flags().StringVarP(&crawlManifestPath, "manifest", "m", "", "Path to job manifest (YAML or JSON)")
	cmd.Flags().StringSliceVar(&crawlIncludes, "include", nil, "Glob pattern files must match (repeatable)")
	cmd.Flags().StringSliceVar(&crawlExcludes, "exclude", nil, "Glob pattern files must not match (repeatable)")
	cmd.Flags().StringSliceVar(&crawlExcludeDirs, "exclude-dir", nil, "Path substring that prunes directories (repeatable)")
	cmd.Flags().StringVar(&crawlMinSize, "min-size", "", "Minimum file size (e.g. 1KB, 10MiB)")
	cmd.Flags().StringVar(&crawlMaxSize, "max-size", "", "Maximum file size (e.g. 100MB, 1GB)")
	cmd.Flags().StringVar(&crawlModifiedAfter, "modified-after", "", "Only files modified after this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&crawlModifiedBefore, "modified-before", "", "Only files modified before this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&crawlDedupe, "dedupe", false, "Skip files whose content hash was already seen")
	cmd.Flags().StringVar(&crawlDedupeHash, "dedupe-hash", "", "Dedup digest: md5, sha1, sha256 (default from config)")
	cmd.Flags().StringVar(&crawlSessionBackend, "session-backend", "", "Session store backend: sqlite or text")
	cmd.Flags().Float64Var(&crawlRateLimit, "rate-limit", 0, "Maximum file dispatches per second (0 = unlimited)")
	cmd.Flags().BoolVar(&crawlDryRun, "dry-run", false, "Validate configuration and show the crawl plan without executing")
}

// crawlJob is the fully resolved configuration for one engine run:
// ambient config overlaid with manifest values overlaid with CLI flags.
type crawlJob struct {
	root           string
	output         string
	workers        int
	rateLimit      float64
	maxDepth       int
	commandTimeout time.Duration
	tempDir        string
	csvBufferBytes int

	includes    []string
	excludes    []string
	excludeDirs []string
	minSize     string
	maxSize     string
	after       string
	before      string

	extract extract.Options

	dedupeEnabled bool
	dedupeHash    session.HashAlgo

	sessionBackend string
	sessionPath    string
	dedupePath     string
}

func runCrawl(cmd *cobra.Command, args []string) error {
	job, err := resolveCrawlJob(cmd, args, config.GetConfig())
	if err != nil {
		return err
	}

	if crawlDryRun {
		return showCrawlPlan(cmd.Context(), job)
	}
	return executeCrawl(cmd.Context(), job)
}

// resolveCrawlJob layers manifest and flag values over the ambient config.
func resolveCrawlJob(cmd *cobra.Command, args []string, cfg *config.Config) (*crawlJob, error) {
	job := &crawlJob{
		workers:        cfg.Workers,
		rateLimit:      cfg.RateLimit,
		maxDepth:       cfg.MaxRecursionDepth,
		commandTimeout: cfg.CommandTimeout(),
		tempDir:        cfg.TempDir,
		csvBufferBytes: cfg.CSVBufferBytes,
		excludeDirs:    append([]string(nil), cfg.ExcludeDirs...),
		extract: extract.Options{
			OCRLanguages:    append([]string(nil), cfg.OCRLanguages...),
			SparseThreshold: cfg.OCRMinText,
			MaxImages:       cfg.OCRMaxImages,
			OCRDisabled:     cfg.OCRDisabled,
			AudioDisabled:   cfg.AudioDisabled,
			ImagesDir:       cfg.ImagesDir,
		},
		dedupeEnabled:  cfg.DedupeEnabled,
		sessionBackend: cfg.SessionBackend,
	}
	hashName := cfg.DedupeHash

	if crawlManifestPath != "" {
		m, err := manifest.Load(crawlManifestPath)
		if err != nil {
			observability.CLILogger.Error("Failed to load manifest",
				zap.String("path", crawlManifestPath),
				zap.Error(err))
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		observability.CLILogger.Debug("Loaded manifest",
			zap.String("path", crawlManifestPath),
			zap.String("root", m.Root),
			zap.Strings("includes", m.Match.Includes))
		applyManifest(job, m, &hashName)
	}

	if len(args) > 0 {
		job.root = args[0]
	}
	if job.root == "" {
		return nil, exitError(foundry.ExitInvalidArgument, "Missing crawl root",
			errors.New("pass ROOT as an argument or set root in the manifest"))
	}

	applyCrawlFlags(cmd, job, &hashName)

	if job.workers < 1 {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --workers",
			fmt.Errorf("workers must be >= 1, got %d", job.workers))
	}
	if job.rateLimit < 0 {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --rate-limit",
			fmt.Errorf("rate limit must be >= 0, got %v", job.rateLimit))
	}

	algo, err := session.ParseHashAlgo(hashName)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --dedupe-hash", err)
	}
	job.dedupeHash = algo

	switch job.sessionBackend {
	case config.SessionBackendSQLite, config.SessionBackendText:
	default:
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --session-backend",
			fmt.Errorf("unsupported session backend: %s", job.sessionBackend))
	}
	// The text backend has no atomic claim across goroutines beyond its
	// process-wide lock; it is only sound with a single worker.
	if job.sessionBackend == config.SessionBackendText && job.workers > 1 {
		observability.CLILogger.Warn("text session backend supports one worker; clamping",
			zap.Int("requested_workers", job.workers))
		job.workers = 1
	}

	if job.output == "" {
		job.output = urlmap.RootStem(job.root) + ".csv"
	}

	stateDir := filepath.Dir(job.output)
	if job.sessionPath == "" {
		job.sessionPath = session.SessionPath(stateDir, job.root)
	}
	job.dedupePath = session.DedupePath(stateDir, job.root)

	return job, nil
}

// applyManifest copies a loaded manifest onto the job. The manifest pins
// the job end to end, so its defaulted values replace ambient config.
func applyManifest(job *crawlJob, m *manifest.Manifest, hashName *string) {
	if m.Root != "" {
		job.root = m.Root
	}
	job.workers = m.Workers
	if m.Output != "" {
		job.output = m.Output
	}
	job.rateLimit = m.RateLimit

	job.includes = append([]string(nil), m.Match.Includes...)
	job.excludes = append([]string(nil), m.Match.Excludes...)
	if len(m.Match.ExcludeDirs) > 0 {
		job.excludeDirs = append([]string(nil), m.Match.ExcludeDirs...)
	}
	if m.Match.MinSize != "" {
		job.minSize = m.Match.MinSize
	}
	if m.Match.MaxSize != "" {
		job.maxSize = m.Match.MaxSize
	}
	if m.Match.ModifiedAfter != "" {
		job.after = m.Match.ModifiedAfter
	}
	if m.Match.ModifiedBefore != "" {
		job.before = m.Match.ModifiedBefore
	}

	job.commandTimeout = time.Duration(m.Extract.CommandTimeoutSeconds) * time.Second
	job.maxDepth = m.Extract.MaxDepth()
	job.extract.OCRLanguages = append([]string(nil), m.Extract.OCR.Languages...)
	job.extract.SparseThreshold = m.Extract.OCR.MinText
	job.extract.MaxImages = m.Extract.OCR.MaxImages
	job.extract.OCRDisabled = m.Extract.OCR.Disabled
	job.extract.AudioDisabled = m.Extract.AudioDisabled
	if m.Extract.ImagesDir != "" {
		job.extract.ImagesDir = m.Extract.ImagesDir
	}

	job.dedupeEnabled = m.Dedupe.Enabled
	*hashName = m.Dedupe.Hash

	job.sessionBackend = m.Session.Backend
	if m.Session.Path != "" {
		job.sessionPath = m.Session.Path
	}
}

// applyCrawlFlags overlays explicitly set CLI flags onto the job.
func applyCrawlFlags(cmd *cobra.Command, job *crawlJob, hashName *string) {
	flags := cmd.Flags()

	if flags.Changed("workers") {
		job.workers = crawlWorkers
	}
	if crawlOutput != "" {
		job.output = crawlOutput
	}
	if len(crawlIncludes) > 0 {
		job.includes = append([]string(nil), crawlIncludes...)
	}
	if len(crawlExcludes) > 0 {
		job.excludes = append([]string(nil), crawlExcludes...)
	}
	if len(crawlExcludeDirs) > 0 {
		job.excludeDirs = append([]string(nil), crawlExcludeDirs...)
	}
	if crawlMinSize != "" {
		job.minSize = crawlMinSize
	}
	if crawlMaxSize != "" {
		job.maxSize = crawlMaxSize
	}
	if crawlModifiedAfter != "" {
		job.after = crawlModifiedAfter
	}
	if crawlModifiedBefore != "" {
		job.before = crawlModifiedBefore
	}
	if flags.Changed("dedupe") {
		job.dedupeEnabled = crawlDedupe
	}
	if crawlDedupeHash != "" {
		*hashName = crawlDedupeHash
	}
	if crawlSessionBackend != "" {
		job.sessionBackend = crawlSessionBackend
	}
	if flags.Changed("rate-limit") {
		job.rateLimit = crawlRateLimit
	}
}

// buildMatcher compiles the include/exclude globs. Nil when no patterns
// are configured: every regular file is a candidate.
func buildMatcher(job *crawlJob) (*match.Matcher, error) {
	if len(job.includes) == 0 && len(job.excludes) == 0 {
		return nil, nil
	}
	includes := job.includes
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return match.New(match.Config{
		Includes: includes,
		Excludes: job.excludes,
		// Hidden files on audited shares are exactly the interesting ones.
		IncludeHidden: true,
	})
}

// buildFilter compiles the size/date predicate. Nil when no bounds are set.
func buildFilter(job *crawlJob) (*match.CompositeFilter, error) {
	if job.minSize == "" && job.maxSize == "" && job.after == "" && job.before == "" {
		return nil, nil
	}
	cfg := &match.FilterConfig{}
	if job.minSize != "" || job.maxSize != "" {
		cfg.Size = &match.SizeFilterConfig{Min: job.minSize, Max: job.maxSize}
	}
	if job.after != "" || job.before != "" {
		cfg.Modified = &match.DateFilterConfig{After: job.after, Before: job.before}
	}
	return match.NewFilterFromConfig(cfg)
}

// buildWalker assembles the discovery walker for the job.
func buildWalker(job *crawlJob, log *zap.Logger) (*fswalk.Walker, error) {
	matcher, err := buildMatcher(job)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
	}
	filter, err := buildFilter(job)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid filters", err)
	}
	walker, err := fswalk.New(job.root, fswalk.Options{
		Matcher:     matcher,
		Filter:      filter,
		ExcludeDirs: job.excludeDirs,
		Logger:      log,
	})
	if err != nil {
		return nil, exitError(foundry.ExitFileNotFound, "Crawl root not accessible", err)
	}
	return walker, nil
}

// scopeFingerprint condenses the root and the discovery predicate into a
// stable token recorded with each session run.
func scopeFingerprint(job *crawlJob) string {
	parts := []string{job.root}
	parts = append(parts, job.includes...)
	parts = append(parts, job.excludes...)
	parts = append(parts, job.excludeDirs...)
	parts = append(parts, job.minSize, job.maxSize, job.after, job.before)
	return session.Fingerprint(parts...)
}

// showCrawlPlan prints what a crawl would do, including the candidate file
// count, without claiming or extracting anything.
func showCrawlPlan(ctx context.Context, job *crawlJob) error {
	walker, err := buildWalker(job, observability.CLILogger)
	if err != nil {
		return err
	}
	mapper := urlmap.ForRoot(job.root)

	fmt.Println("=== Crawl Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Root:        %s\n", job.root)
	if mapper.Recognized() {
		fmt.Printf("Logical URL: %s\n", mapper.URL(job.root))
	}
	if mapper.Server() != "" {
		fmt.Printf("Server:      %s\n", mapper.Server())
	}
	if mapper.Share() != "" {
		fmt.Printf("Share:       %s\n", mapper.Share())
	}
	fmt.Printf("Output:      %s\n", job.output)
	fmt.Printf("Workers:     %d\n", job.workers)
	if job.rateLimit > 0 {
		fmt.Printf("Rate Limit:  %.1f files/s\n", job.rateLimit)
	}
	fmt.Println()

	if len(job.includes) > 0 || len(job.excludes) > 0 {
		fmt.Println("Patterns:")
		if len(job.includes) > 0 {
			fmt.Println("  Include:")
			for _, p := range job.includes {
				fmt.Printf("    - %s\n", p)
			}
		}
		if len(job.excludes) > 0 {
			fmt.Println("  Exclude:")
			for _, p := range job.excludes {
				fmt.Printf("    - %s\n", p)
			}
		}
		fmt.Println()
	}
	if len(job.excludeDirs) > 0 {
		fmt.Printf("Exclude dirs: %s\n", strings.Join(job.excludeDirs, ", "))
		fmt.Println()
	}

	if job.minSize != "" || job.maxSize != "" || job.after != "" || job.before != "" {
		fmt.Println("Filters:")
		if job.minSize != "" || job.maxSize != "" {
			fmt.Printf("  Size:      min=%s max=%s\n", job.minSize, job.maxSize)
		}
		if job.after != "" || job.before != "" {
			fmt.Printf("  Modified:  after=%s before=%s\n", job.after, job.before)
		}
		fmt.Println()
	}

	fmt.Println("Extraction:")
	fmt.Printf("  Timeout:   %s\n", job.commandTimeout)
	fmt.Printf("  Max depth: %d\n", job.maxDepth)
	if job.extract.OCRDisabled {
		fmt.Println("  OCR:       disabled")
	} else {
		fmt.Printf("  OCR:       %s (sparse threshold %d, max images %d)\n",
			strings.Join(job.extract.OCRLanguages, "+"), job.extract.SparseThreshold, job.extract.MaxImages)
	}
	if job.dedupeEnabled {
		fmt.Printf("Dedup:       %s\n", job.dedupeHash)
	}
	fmt.Printf("Session:     %s (%s)\n", job.sessionBackend, job.sessionPath)
	fmt.Println()

	count, err := walker.Count(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Plan cancelled", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to enumerate candidates", err)
	}
	fmt.Printf("Candidates:  %d files\n", count)
	fmt.Println()
	fmt.Println("Configuration validated. Remove --dry-run to execute.")
	return nil
}

// executeCrawl wires the engine's collaborators and runs it.
func executeCrawl(ctx context.Context, job *crawlJob) error {
	log := observability.CLILogger

	walker, err := buildWalker(job, log)
	if err != nil {
		return err
	}
	mapper := urlmap.ForRoot(job.root)

	writer, cleanup, err := createWriter(job)
	if err != nil {
		log.Error("Failed to open output", zap.String("path", job.output), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to open output", err)
	}
	defer cleanup()

	sessions, err := openSessionStore(ctx, job)
	if err != nil {
		log.Error("Failed to open session store", zap.String("path", job.sessionPath), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to open session store", err)
	}
	defer func() { _ = sessions.Close() }()

	fp := scopeFingerprint(job)
	var runID string
	if sq, ok := sessions.(*session.SQLiteStore); ok {
		run, prev, err := sq.BeginRun(ctx, job.root, fp)
		if err != nil {
			log.Warn("session run bookkeeping failed", zap.Error(err))
		} else {
			runID = run.ID
			if prev != "" && prev != fp {
				log.Warn("resuming a session built under a different scope",
					zap.String("previous_fingerprint", prev),
					zap.String("current_fingerprint", fp))
			}
		}
	}

	var dedupe *session.DedupStore
	if job.dedupeEnabled {
		dedupe, err = session.OpenDedupe(ctx, job.dedupePath)
		if err == nil {
			err = dedupe.Init(ctx)
		}
		if err != nil {
			log.Error("Failed to open dedup store", zap.String("path", job.dedupePath), zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Failed to open dedup store", err)
		}
		defer func() { _ = dedupe.Close() }()
	}

	scratchMgr, err := scratch.NewManager(job.tempDir)
	if err != nil {
		log.Error("Failed to create scratch root", zap.String("dir", job.tempDir), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create scratch root", err)
	}
	defer func() {
		if n, err := scratchMgr.Sweep(); err != nil {
			log.Warn("scratch sweep failed", zap.Int("removed", n), zap.Error(err))
		}
	}()

	detector := detect.New()
	registry := extract.NewRegistry(job.extract, detector)

	maxDepth := job.maxDepth
	if maxDepth == 0 {
		maxDepth = -1 // zero means default to the crawler; negative disables expansion
	}

	c, err := crawler.New(crawler.Config{
		Workers:        job.workers,
		MaxDepth:       maxDepth,
		CommandTimeout: job.commandTimeout,
		RateLimit:      job.rateLimit,
		DedupeEnabled:  job.dedupeEnabled,
		DedupeHash:     job.dedupeHash,
	}, crawler.Deps{
		Walker:   walker,
		Sessions: sessions,
		Dedupe:   dedupe,
		Detector: detector,
		Registry: registry,
		Writer:   writer,
		Mapper:   mapper,
		Scratch:  scratchMgr,
		Logger:   log,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid crawl configuration", err)
	}

	log.Info("Starting crawl",
		zap.String("root", job.root),
		zap.String("output", job.output),
		zap.Int("workers", job.workers),
		zap.Bool("dedupe", job.dedupeEnabled))

	summary, err := c.Run(ctx)
	endRun(sessions, runID, err)
	if err != nil {
		if ctx.Err() != nil {
			var processed int64
			if summary != nil {
				processed = summary.FilesProcessed
			}
			log.Warn("Crawl cancelled",
				zap.Int64("files_processed", processed),
				zap.String("output", job.output))
			return exitError(foundry.ExitSignalInt, "Crawl cancelled", err)
		}
		log.Error("Crawl failed", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Crawl failed", err)
	}

	log.Info("Crawl completed",
		zap.String("output", job.output),
		zap.Int64("files_total", summary.FilesTotal),
		zap.Int64("files_processed", summary.FilesProcessed),
		zap.Int64("files_skipped", summary.FilesSkipped),
		zap.Int64("files_error", summary.FilesError),
		zap.Int64("nested_dropped", summary.NestedDropped),
		zap.Duration("duration", summary.Duration))
	return nil
}

// endRun stamps the session run row with its terminal status.
func endRun(sessions session.Store, runID string, runErr error) {
	if runID == "" {
		return
	}
	sq, ok := sessions.(*session.SQLiteStore)
	if !ok {
		return
	}
	status := session.RunStatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = session.RunStatusInterrupted
	case runErr != nil:
		status = session.RunStatusFailed
	}
	// The run context may already be cancelled; stamping uses a fresh one.
	if err := sq.EndRun(context.Background(), runID, status); err != nil {
		observability.CLILogger.Warn("session run bookkeeping failed", zap.Error(err))
	}
}

// createWriter opens the CSV output writer. Returns the writer, a cleanup
// function, and any error.
func createWriter(job *crawlJob) (output.Writer, func(), error) {
	w, err := output.NewCSVWriter(job.output, output.Options{BufferBytes: job.csvBufferBytes})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", job.output, err)
	}
	cleanup := func() {
		if err := w.Close(); err != nil {
			observability.CLILogger.Warn("output close failed", zap.Error(err))
		}
	}
	return w, cleanup, nil
}

// openSessionStore opens and initializes the configured session backend.
func openSessionStore(ctx context.Context, job *crawlJob) (session.Store, error) {
	var (
		store session.Store
		err   error
	)
	if job.sessionBackend == config.SessionBackendText {
		store, err = session.OpenText(job.sessionPath)
	} else {
		store, err = session.OpenSQLite(ctx, job.sessionPath)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// exitError creates an error that makes Execute exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, message: message, err: err}
}
