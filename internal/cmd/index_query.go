package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/gotrawl/pkg/indexstore"
)

var indexQueryCmd = &cobra.Command{
	Use:   "query <term> [term...]",
	Short: "Search the index",
	Long: `Run a ranked full-text query against the index.

Terms combine with implicit AND. Matches in the document URL rank above
matches in the title, which rank above matches in the body text. Snippets
highlight matched terms in [brackets].

Examples:
  gotrawl index query password
  gotrawl index query quarterly forecast --site finance
  gotrawl index query invoice --class pdf --limit 25
  gotrawl index query backup --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexQuery,
}

var (
	indexQuerySite   string
	indexQueryClass  string
	indexQueryLimit  int
	indexQueryOffset int
	indexQueryJSON   bool
)

func init() {
	indexCmd.AddCommand(indexQueryCmd)

	indexQueryCmd.Flags().StringVar(&indexQuerySite, "site", "", "Restrict hits to one site")
	indexQueryCmd.Flags().StringVar(&indexQueryClass, "class", "", "Restrict hits to one document class")
	indexQueryCmd.Flags().IntVarP(&indexQueryLimit, "limit", "n", 10, "Maximum hits to return")
	indexQueryCmd.Flags().IntVar(&indexQueryOffset, "offset", 0, "Hits to skip for paging")
	indexQueryCmd.Flags().BoolVar(&indexQueryJSON, "json", false, "Emit hits as JSONL")
}

// indexHitRecord is the JSONL output format for query hits.
type indexHitRecord struct {
	Type string             `json:"type"`
	TS   string             `json:"ts"`
	Data indexHitRecordData `json:"data"`
}

type indexHitRecordData struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Site      string  `json:"site"`
	Class     string  `json:"class"`
	Server    string  `json:"server,omitempty"`
	Share     string  `json:"share,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Snippet   string  `json:"snippet"`
	Rank      float64 `json:"rank"`
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	store, err := openIndexStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := store.Search(ctx, query, indexstore.SearchOptions{
		Site:   indexQuerySite,
		Class:  indexQueryClass,
		Limit:  indexQueryLimit,
		Offset: indexQueryOffset,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if indexQueryJSON {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		enc := json.NewEncoder(os.Stdout)
		for _, h := range result.Hits {
			record := indexHitRecord{
				Type: "gotrawl.index.hit.v1",
				TS:   now,
				Data: indexHitRecordData{
					ID:        h.ID,
					URL:       h.URL,
					Title:     h.Title,
					Site:      h.Site,
					Class:     h.Class,
					Server:    h.Server,
					Share:     h.Share,
					Timestamp: h.Timestamp,
					Snippet:   h.Snippet,
					Rank:      h.Rank,
				},
			}
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("encode hit: %w", err)
			}
		}
		_, _ = fmt.Fprintf(os.Stderr, "Matched %d document(s) (showing %d)\n", result.Total, len(result.Hits))
		return nil
	}

	if len(result.Hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, h := range result.Hits {
		title := h.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%d. %s\n", indexQueryOffset+i+1, title)
		fmt.Printf("   %s\n", h.URL)
		fmt.Printf("   site=%s class=%s", h.Site, h.Class)
		if h.Timestamp != "" {
			fmt.Printf(" ts=%s", h.Timestamp)
		}
		fmt.Println()
		if h.Snippet != "" {
			fmt.Printf("   %s\n", h.Snippet)
		}
		fmt.Println()
	}
	_, _ = fmt.Fprintf(os.Stderr, "Matched %d document(s) (showing %d)\n", result.Total, len(result.Hits))
	return nil
}
