package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/internal/observability"
	"github.com/3leaps/gotrawl/pkg/indexstore"
)

var indexImportCmd = &cobra.Command{
	Use:   "import <csv> [csv...]",
	Short: "Import crawl CSVs into the index",
	Long: `Stream one or more crawl output CSVs into the search index.

Each CSV is filed under a site label, defaulting to the CSV filename stem.
Document ids derive from the logical URL, so re-importing a CSV replaces
its rows instead of duplicating them. Partial CSVs from a crawl still in
progress import cleanly; a later re-import picks up the rest.

The database is created and migrated on first import.

Examples:
  gotrawl index import smb_fs01_finance.csv
  gotrawl index import smb_fs01_finance.csv --site finance
  gotrawl index import scans/*.csv --batch-size 1000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexImport,
}

var (
	indexImportSite      string
	indexImportBatchSize int
)

func init() {
	indexCmd.AddCommand(indexImportCmd)

	indexImportCmd.Flags().StringVar(&indexImportSite, "site", "", "Site label (default: CSV filename stem)")
	indexImportCmd.Flags().IntVar(&indexImportBatchSize, "batch-size", 0, "Documents per upsert transaction (default from config)")
}

func runIndexImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	batchSize := indexImportBatchSize
	if batchSize <= 0 {
		if cfg := config.GetConfig(); cfg != nil {
			batchSize = cfg.Index.BatchSize
		}
	}

	path, err := resolveIndexDBPath()
	if err != nil {
		return err
	}
	store, err := indexstore.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open index database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("migrate index schema: %w", err)
	}

	var totalImported, totalSkipped int64
	for _, csvPath := range args {
		stats, err := store.Import(ctx, csvPath, indexImportSite, batchSize)
		if err != nil {
			observability.CLILogger.Error("Import failed",
				zap.String("csv", csvPath),
				zap.Error(err))
			return fmt.Errorf("import %s: %w", csvPath, err)
		}
		totalImported += stats.Imported
		totalSkipped += stats.Skipped
		_, _ = fmt.Fprintf(os.Stderr, "Imported %d document(s) (%d skipped) from %s into site %q\n",
			stats.Imported, stats.Skipped, csvPath, stats.Site)
	}

	if len(args) > 1 {
		_, _ = fmt.Fprintf(os.Stderr, "Total: %d imported, %d skipped across %d file(s)\n",
			totalImported, totalSkipped, len(args))
	}
	return nil
}
