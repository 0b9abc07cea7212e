package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kbindex/internal/kb"
	"kbindex/internal/maintenance"
	"kbindex/internal/util"
)

var (
	refreshSchedule string
	refreshRebuild  bool
	refreshOut      string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run a scheduled index refresh",
	Long: `Re-ingests every document in the knowledge base and writes a
refresh report. The schedule name is validated before any store is opened.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshSchedule, "schedule", maintenance.ScheduleNightly, "refresh schedule (nightly or weekly)")
	refreshCmd.Flags().BoolVar(&refreshRebuild, "rebuild", false, "delete existing vectors per document before ingesting")
	refreshCmd.Flags().StringVar(&refreshOut, "out", "", "write the refresh report JSON to this path")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	if err := maintenance.ValidateSchedule(refreshSchedule); err != nil {
		return err
	}

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

	report, err := maintenance.New(pipeline, logger).Refresh(ctx, docs, refreshSchedule, refreshRebuild)
	if err != nil {
		return err
	}

	cmd.Printf("refresh %s (%s): %d processed, %d failed, %d chunks in %s\n",
		report.RunID, report.Schedule,
		report.DocumentsProcessed, report.DocumentsFailed, report.TotalChunks,
		report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))

	outPath := refreshOut
	if outPath == "" && cfg.DataOutRoot != "" {
		outPath = filepath.Join(cfg.DataOutRoot, "refresh", report.RunID, "refresh_report.json")
	}
	if outPath != "" {
		if err := util.WriteJSONAtomic(outPath, report); err != nil {
			return err
		}
		cmd.Printf("report written to %s\n", outPath)
	}
	return nil
}
