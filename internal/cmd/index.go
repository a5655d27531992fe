package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/cobra"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/pkg/indexstore"
	"github.com/3leaps/gotrawl/pkg/match"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local search index",
	Long: `Manage the local full-text search index.

Crawl output CSVs are imported into a per-user SQLite database with FTS5,
where each import is filed under a site label. The serve command exposes
the same database over HTTP.

The database lives in the per-user data directory unless index.db is set
in the configuration or --db is given.`,
}

var indexDBPath string

var indexInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the index database",
	RunE:  runIndexInit,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed sites",
	RunE:  runIndexList,
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete <site>",
	Short: "Delete one site's documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexDelete,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index totals",
	RunE:  runIndexStats,
}

var indexDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Remove every document from the index",
	RunE:  runIndexDrop,
}

var indexDropForce bool

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexInitCmd)
	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexDeleteCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexDropCmd)

	indexCmd.PersistentFlags().StringVar(&indexDBPath, "db", "", "Index database path (optional override)")
	indexDropCmd.Flags().BoolVar(&indexDropForce, "force", false, "Actually delete; without it only report what would go")
}

// resolveIndexDBPath picks the index database location: --db flag, then
// the index.db config key, then the per-user data directory.
func resolveIndexDBPath() (string, error) {
	if p := strings.TrimSpace(indexDBPath); p != "" {
		return p, nil
	}
	if cfg := config.GetConfig(); cfg != nil && strings.TrimSpace(cfg.Index.DB) != "" {
		return cfg.Index.DB, nil
	}
	identity := GetAppIdentity()
	if identity == nil || strings.TrimSpace(identity.ConfigName) == "" {
		return "", fmt.Errorf("app identity is not available")
	}
	dataDir := gfconfig.GetAppDataDir(identity.ConfigName)
	return filepath.Join(dataDir, "indexes", "gotrawl-index.db"), nil
}

// openIndexStore opens an existing index database. Callers that can work
// against a fresh database use runIndexInit or Import instead.
func openIndexStore(ctx context.Context) (*indexstore.Store, error) {
	path, err := resolveIndexDBPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("index database not found at %s (run 'gotrawl index init' first)", path)
	}
	store, err := indexstore.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	return store, nil
}

func runIndexInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := resolveIndexDBPath()
	if err != nil {
		return err
	}

	store, err := indexstore.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Init(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(os.Stdout, "Index database initialized")
	_, _ = fmt.Fprintf(os.Stdout, "db=%s\n", path)
	_, _ = fmt.Fprintf(os.Stdout, "schema_version=%d\n", indexstore.SchemaVersion)
	return nil
}

func runIndexList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openIndexStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sites, err := store.Sites(ctx)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		fmt.Println("No sites indexed.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "SITE\tDOCUMENTS\tNEWEST"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range sites {
		newest := "-"
		if s.Newest > 0 {
			newest = time.Unix(s.Newest, 0).UTC().Format("2006-01-02 15:04:05")
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\t%s\n", s.Site, s.Documents, newest); err != nil {
			return fmt.Errorf("failed to write site: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stderr, "Listed %d site(s)\n", len(sites))
	return nil
}

func runIndexDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	site := args[0]

	store, err := openIndexStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.DeleteSite(ctx, site)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d document(s) for site %q\n", n, site)
	return nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openIndexStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	report, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Documents: %d\n", report.Documents)
	fmt.Printf("Sites:     %d\n", report.Sites)
	fmt.Printf("DB size:   %s\n", match.FormatSize(report.DBBytes))

	if len(report.ByClass) > 0 {
		fmt.Println()
		fmt.Println("By class:")
		classes := make([]string, 0, len(report.ByClass))
		for class := range report.ByClass {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, class := range classes {
			if _, err := fmt.Fprintf(w, "  %s\t%d\n", class, report.ByClass[class]); err != nil {
				return fmt.Errorf("failed to write class: %w", err)
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}
	}
	return nil
}

func runIndexDrop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openIndexStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if !indexDropForce {
		report, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Would delete %d document(s) across %d site(s).\n", report.Documents, report.Sites)
		fmt.Println("Use --force to delete.")
		return nil
	}

	n, err := store.Drop(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Dropped %d document(s)\n", n)
	return nil
}
