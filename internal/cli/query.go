package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"kbindex/internal/util"
	"kbindex/internal/vectorstore"
)

var (
	queryLimit    int
	queryDocument string
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run a similarity search over the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 8, "maximum number of results")
	queryCmd.Flags().StringVar(&queryDocument, "document", "", "restrict results to one document ID")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	store, _, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Search(ctx, args[0], queryLimit, vectorstore.Filter{DocumentID: queryDocument})
	if err != nil {
		return err
	}

	if queryJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("no results")
		return nil
	}
	for i, r := range results {
		cmd.Printf("[%d] %.3f %s\n    %s\n", i+1, r.Score, r.ChunkID, util.Snippet(r.Text, 160))
	}
	return nil
}
