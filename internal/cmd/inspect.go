package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/internal/observability"
	"github.com/3leaps/gotrawl/pkg/detect"
	"github.com/3leaps/gotrawl/pkg/extract"
	"github.com/3leaps/gotrawl/pkg/match"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Classify one file and run its extractor",
	Long: `Run the per-file pipeline against a single file: detect its MIME type,
resolve its document class, invoke the class adapter, and report the
extracted text and any nested children the adapter unpacked.

Useful for checking why a file indexed the way it did, or whether the
external tool behind a class is behaving.

Examples:
  gotrawl inspect report.pdf
  gotrawl inspect backup.zip --preview 0
  gotrawl inspect mail.msg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectJSON    bool
	inspectPreview int
	inspectTimeout int
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().IntVar(&inspectPreview, "preview", 400, "Text preview length in characters (0 = full text)")
	inspectCmd.Flags().IntVar(&inspectTimeout, "timeout", 0, "Extractor timeout in seconds (default from config)")
}

// inspectReport is what inspect learned about one file.
type inspectReport struct {
	Path     string         `json:"path"`
	Size     int64          `json:"size"`
	Modified time.Time      `json:"modified"`
	MIME     string         `json:"mime"`
	Class    string         `json:"class"`
	Expands  bool           `json:"expands"`
	Text     string         `json:"text"`
	TextLen  int            `json:"text_len"`
	Children []inspectChild `json:"children,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type inspectChild struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	cfg := config.GetConfig()

	info, err := os.Stat(path)
	if err != nil {
		observability.CLILogger.Error("File not accessible", zap.String("path", path), zap.Error(err))
		return exitError(foundry.ExitFileNotFound, "File not accessible", err)
	}
	if info.IsDir() {
		return exitError(foundry.ExitInvalidArgument, "Expected a file",
			fmt.Errorf("%s is a directory; use 'gotrawl crawl' for trees", path))
	}

	detector := detect.New()
	mime, err := detector.MIME(ctx, path)
	if err != nil {
		observability.CLILogger.Error("Type detection failed", zap.String("path", path), zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Type detection failed", err)
	}

	registry := extract.NewRegistry(extract.Options{
		OCRLanguages:    cfg.OCRLanguages,
		SparseThreshold: cfg.OCRMinText,
		MaxImages:       cfg.OCRMaxImages,
		OCRDisabled:     cfg.OCRDisabled,
		AudioDisabled:   cfg.AudioDisabled,
		ImagesDir:       cfg.ImagesDir,
	}, detector)
	entry := registry.Resolve(mime, path)

	scratchMgr, err := scratch.NewManager(cfg.TempDir)
	if err != nil {
		observability.CLILogger.Error("Failed to create scratch root", zap.String("dir", cfg.TempDir), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create scratch root", err)
	}
	defer func() {
		if _, err := scratchMgr.Sweep(); err != nil {
			observability.CLILogger.Warn("scratch sweep failed", zap.Error(err))
		}
	}()

	timeout := cfg.CommandTimeout()
	if inspectTimeout > 0 {
		timeout = time.Duration(inspectTimeout) * time.Second
	}
	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := inspectReport{
		Path:     path,
		Size:     info.Size(),
		Modified: info.ModTime(),
		MIME:     mime,
		Class:    string(entry.Class),
		Expands:  entry.Expands,
	}

	result, err := entry.Adapter.Extract(extractCtx, path, scratchMgr)
	if err != nil {
		// Extraction failure is a finding, not a command failure: the
		// classification above is the answer being asked for.
		report.Error = err.Error()
	}
	report.Text = result.Text
	report.TextLen = len(result.Text)
	if result.Scratch != nil {
		report.Children = listScratchChildren(result.Scratch)
		if err := result.Scratch.Release(); err != nil {
			observability.CLILogger.Warn("scratch release failed", zap.Error(err))
		}
	}

	if inspectJSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}
	return printInspectReport(report)
}

// listScratchChildren enumerates the files an expanding adapter unpacked.
func listScratchChildren(dir *scratch.Dir) []inspectChild {
	var children []inspectChild
	root := dir.Path()
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = d.Name()
		}
		var size int64
		if fi, infoErr := d.Info(); infoErr == nil {
			size = fi.Size()
		}
		children = append(children, inspectChild{Name: rel, Size: size})
		return nil
	})
	return children
}

// printInspectReport writes the human-readable report to stdout.
func printInspectReport(r inspectReport) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "File:\t%s\n", r.Path)
	fmt.Fprintf(w, "Size:\t%s\n", match.FormatSize(r.Size))
	fmt.Fprintf(w, "Modified:\t%s\n", r.Modified.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "MIME:\t%s\n", r.MIME)
	fmt.Fprintf(w, "Class:\t%s\n", r.Class)
	fmt.Fprintf(w, "Expands:\t%t\n", r.Expands)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	if r.Error != "" {
		fmt.Println()
		fmt.Printf("Extraction error: %s\n", r.Error)
	}

	fmt.Println()
	text := r.Text
	truncated := false
	if inspectPreview > 0 && len(text) > inspectPreview {
		text = text[:inspectPreview]
		truncated = true
	}
	switch {
	case r.TextLen == 0:
		fmt.Println("Text: (none)")
	case truncated:
		fmt.Printf("Text (%d chars, preview):\n", r.TextLen)
	default:
		fmt.Printf("Text (%d chars):\n", r.TextLen)
	}
	if text != "" {
		for _, line := range strings.Split(text, "\n") {
			fmt.Printf("  %s\n", line)
		}
	}

	if len(r.Children) > 0 {
		fmt.Println()
		fmt.Printf("Children (%d):\n", len(r.Children))
		cw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, c := range r.Children {
			fmt.Fprintf(cw, "  %s\t%s\n", c.Name, match.FormatSize(c.Size))
		}
		if err := cw.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}
	}
	return nil
}
