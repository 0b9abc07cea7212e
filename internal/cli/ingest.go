package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kbindex/internal/kb"
	"kbindex/internal/models"
)

var (
	ingestRebuild bool
	ingestPDFDir  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk and index every document in the knowledge base",
	Long: `Loads the knowledge base (or a directory of PDFs), chunks each
document and writes the chunks to the configured vector store. Documents that
fail are reported and skipped; the command only fails when the input cannot
be read at all.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRebuild, "rebuild", false, "delete existing vectors per document before ingesting")
	ingestCmd.Flags().StringVar(&ingestPDFDir, "pdf-dir", "", "ingest raw PDFs from this directory instead of the knowledge base")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var docs []models.Document
	if ingestPDFDir != "" {
		loaded, failed, err := kb.LoadPDFDir(ingestPDFDir)
		if err != nil {
			return err
		}
		for path, loadErr := range failed {
			cmd.PrintErrf("skipped %s: %v\n", path, loadErr)
		}
		docs = loaded
	} else {
		docs, err = kb.Load(cfg.KnowledgeBasePath)
		if err != nil {
			return err
		}
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents to ingest")
	}

	ctx := context.Background()
	store, pipeline, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stats := pipeline.IngestAll(ctx, docs, ingestRebuild)
	total := 0
	for _, s := range stats {
		total += s.ChunksIngested
		cmd.Printf("%s: %d chunks (%d full text, %d agent)\n",
			s.DocumentID, s.ChunksIngested, s.FullTextChunks, s.AgentChunks)
	}
	cmd.Printf("ingested %d/%d documents, %d chunks total\n", len(stats), len(docs), total)
	if len(stats) < len(docs) {
		cmd.PrintErrf("%d documents failed\n", len(docs)-len(stats))
	}
	return nil
}
