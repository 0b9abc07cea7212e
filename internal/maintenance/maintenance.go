package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kbindex/internal/ingest"
	"kbindex/internal/models"
	"kbindex/internal/util"
)

// Refresh schedules.
const (
	ScheduleNightly = "nightly"
	ScheduleWeekly  = "weekly"
)

func ValidateSchedule(schedule string) error {
	switch schedule {
	case ScheduleNightly, ScheduleWeekly:
		return nil
	default:
		return fmt.Errorf("%w: %s", util.ErrUnknownSchedule, schedule)
	}
}

// Window is the time span a scheduled refresh covers.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScheduleWindow computes the span ending at reference that a refresh on the
// given schedule is responsible for.
func ScheduleWindow(schedule string, reference time.Time) Window {
	if reference.IsZero() {
		reference = time.Now().UTC()
	}
	start := reference.AddDate(0, 0, -1)
	if schedule == ScheduleWeekly {
		start = reference.AddDate(0, 0, -7)
	}
	return Window{Start: start, End: reference}
}

// Maintenance coordinates scheduled index refreshes and integrity checks.
type Maintenance struct {
	pipeline *ingest.Pipeline
	log      *zap.Logger
}

func New(pipeline *ingest.Pipeline, log *zap.Logger) *Maintenance {
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintenance{pipeline: pipeline, log: log}
}

// Refresh re-ingests every document and reports what happened. Individual
// document failures are counted, not propagated, so one broken document
// cannot abort a scheduled run.
func (m *Maintenance) Refresh(ctx context.Context, docs []models.Document, schedule string, rebuild bool) (models.RefreshReport, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return models.RefreshReport{}, err
	}

	report := models.RefreshReport{
		RunID:     uuid.NewString(),
		Schedule:  schedule,
		StartedAt: time.Now().UTC(),
	}
	m.log.Info("index refresh started",
		zap.String("run_id", report.RunID),
		zap.String("schedule", schedule),
		zap.Int("documents", len(docs)),
		zap.Bool("rebuild", rebuild))

	stats := m.pipeline.IngestAll(ctx, docs, rebuild)
	report.CompletedAt = time.Now().UTC()
	report.DocumentsProcessed = len(stats)
	report.DocumentsFailed = len(docs) - len(stats)
	report.IngestStats = stats
	for _, s := range stats {
		report.TotalChunks += s.ChunksIngested
	}

	m.log.Info("index refresh completed",
		zap.String("run_id", report.RunID),
		zap.Int("processed", report.DocumentsProcessed),
		zap.Int("failed", report.DocumentsFailed),
		zap.Int("chunks", report.TotalChunks))
	return report, nil
}

// RunIntegrityCheck delegates to the pipeline so callers need only one handle.
func (m *Maintenance) RunIntegrityCheck(ctx context.Context, docs []models.Document) (models.IntegrityReport, error) {
	return m.pipeline.RunIntegrityCheck(ctx, docs)
}
