package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"kbindex/internal/activities"
	"kbindex/internal/maintenance"
	"kbindex/internal/models"
)

const QueryGetRefreshProgress = "GetRefreshProgress"

// RefreshWorkflow re-ingests every document in the knowledge base in bounded
// waves, runs an integrity check over the result, and writes a refresh report
// artifact. A document that fails is counted and skipped; the run itself only
// fails when the knowledge base cannot be listed at all.
func RefreshWorkflow(ctx workflow.Context, input RefreshInput) (models.RefreshReport, error) {
	if err := maintenance.ValidateSchedule(input.Schedule); err != nil {
		return models.RefreshReport{}, err
	}

	progress := RefreshProgress{PerDocument: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetRefreshProgress, func() (RefreshProgress, error) {
		return progress, nil
	}); err != nil {
		return models.RefreshReport{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	report := models.RefreshReport{
		RunID:     workflow.GetInfo(ctx).WorkflowExecution.RunID,
		Schedule:  input.Schedule,
		StartedAt: workflow.Now(ctx).UTC(),
	}

	var listOut activities.ListDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "ListDocumentsActivity", activities.ListDocumentsInput{
		KnowledgeBasePath: input.KnowledgeBasePath,
	}).Get(ctx, &listOut); err != nil {
		return models.RefreshReport{}, err
	}
	ids := listOut.DocumentIDs
	progress.Total = len(ids)

	maxConcurrent := input.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	for i := 0; i < len(ids); i += maxConcurrent {
		end := i + maxConcurrent
		if end > len(ids) {
			end = len(ids)
		}
		futures := make([]workflow.Future, 0, end-i)
		waveIDs := make([]string, 0, end-i)
		for _, id := range ids[i:end] {
			progress.PerDocument[id] = "processing"
			f := workflow.ExecuteActivity(ctx, "IngestDocumentActivity", activities.IngestDocumentInput{
				KnowledgeBasePath: input.KnowledgeBasePath,
				DocumentID:        id,
				Rebuild:           input.Rebuild,
			})
			futures = append(futures, f)
			waveIDs = append(waveIDs, id)
		}

		for idx, f := range futures {
			var out activities.IngestDocumentOutput
			id := waveIDs[idx]
			if err := f.Get(ctx, &out); err != nil {
				report.DocumentsFailed++
				progress.Failed++
				progress.PerDocument[id] = "failed"
				continue
			}
			report.DocumentsProcessed++
			report.TotalChunks += out.Stats.ChunksIngested
			report.IngestStats = append(report.IngestStats, out.Stats)
			progress.Done++
			progress.PerDocument[id] = "done"
		}
	}

	var integrityOut activities.IntegrityCheckOutput
	if err := workflow.ExecuteActivity(ctx, "IntegrityCheckActivity", activities.IntegrityCheckInput{
		KnowledgeBasePath: input.KnowledgeBasePath,
	}).Get(ctx, &integrityOut); err != nil {
		workflow.GetLogger(ctx).Warn("integrity check failed after refresh", "error", err)
	}

	report.CompletedAt = workflow.Now(ctx).UTC()
	_ = workflow.ExecuteActivity(ctx, "WriteRefreshReportActivity", activities.WriteRefreshReportInput{
		Report: report,
	}).Get(ctx, nil)

	return report, nil
}
