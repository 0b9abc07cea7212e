package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kbindex/internal/kb"
	"kbindex/internal/models"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check index integrity against the knowledge base",
	Long: `Compares the chunk count each document would produce today with the
count actually indexed, and prints one line per document. Exits non-zero when
any document is missing chunks or holds stale ones.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	docs, err := kb.Load(cfg.KnowledgeBasePath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, pipeline, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := pipeline.RunIntegrityCheck(ctx, docs)
	if err != nil {
		return err
	}

	unhealthy := 0
	for _, item := range report.Documents {
		cmd.Printf("%-8s %s expected=%d indexed=%d\n",
			item.Status, item.DocumentID, item.ExpectedChunks, item.IndexedChunks)
		if item.Status != models.IntegrityOK {
			unhealthy++
		}
	}
	cmd.Printf("total expected=%d indexed=%d\n", report.TotalExpected, report.TotalIndexed)
	if unhealthy > 0 {
		return fmt.Errorf("%d of %d documents are not ok", unhealthy, len(report.Documents))
	}
	return nil
}
