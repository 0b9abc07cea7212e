package activities

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"kbindex/internal/config"
	"kbindex/internal/ingest"
	"kbindex/internal/kb"
	"kbindex/internal/models"
	"kbindex/internal/util"
)

type Activities struct {
	cfg      config.Config
	pipeline *ingest.Pipeline
	log      *zap.Logger
}

func New(cfg config.Config, pipeline *ingest.Pipeline, log *zap.Logger) *Activities {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activities{cfg: cfg, pipeline: pipeline, log: log}
}

func (a *Activities) ListDocumentsActivity(ctx context.Context, in ListDocumentsInput) (ListDocumentsOutput, error) {
	_ = ctx
	docs, err := kb.Load(in.KnowledgeBasePath)
	if err != nil {
		return ListDocumentsOutput{}, err
	}
	out := ListDocumentsOutput{DocumentIDs: make([]string, 0, len(docs))}
	for _, d := range docs {
		out.DocumentIDs = append(out.DocumentIDs, d.DocumentID)
	}
	return out, nil
}

// IngestDocumentActivity loads the knowledge base on the worker side and
// ingests a single document, so full document bodies never travel through
// workflow history.
func (a *Activities) IngestDocumentActivity(ctx context.Context, in IngestDocumentInput) (IngestDocumentOutput, error) {
	doc, err := a.findDocument(in.KnowledgeBasePath, in.DocumentID)
	if err != nil {
		return IngestDocumentOutput{}, err
	}
	stats, err := a.pipeline.IngestDocument(ctx, doc, in.Rebuild)
	if err != nil {
		return IngestDocumentOutput{}, err
	}
	return IngestDocumentOutput{Stats: stats}, nil
}

func (a *Activities) IntegrityCheckActivity(ctx context.Context, in IntegrityCheckInput) (IntegrityCheckOutput, error) {
	docs, err := kb.Load(in.KnowledgeBasePath)
	if err != nil {
		return IntegrityCheckOutput{}, err
	}
	report, err := a.pipeline.RunIntegrityCheck(ctx, docs)
	if err != nil {
		return IntegrityCheckOutput{}, err
	}
	return IntegrityCheckOutput{Report: report}, nil
}

func (a *Activities) WriteRefreshReportActivity(ctx context.Context, in WriteRefreshReportInput) (WriteRefreshReportOutput, error) {
	_ = ctx
	runDir := filepath.Join(a.cfg.DataOutRoot, "refresh", in.Report.RunID)
	reportPath := filepath.Join(runDir, "refresh_report.json")
	if err := util.WriteJSONAtomic(reportPath, in.Report); err != nil {
		return WriteRefreshReportOutput{}, err
	}

	rows := make([]any, 0, len(in.Report.IngestStats))
	for _, s := range in.Report.IngestStats {
		rows = append(rows, s)
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(runDir, "ingest_stats.jsonl"), rows); err != nil {
		return WriteRefreshReportOutput{}, err
	}
	return WriteRefreshReportOutput{ReportPath: reportPath}, nil
}

func (a *Activities) findDocument(kbPath, documentID string) (models.Document, error) {
	docs, err := kb.Load(kbPath)
	if err != nil {
		return models.Document{}, err
	}
	for _, d := range docs {
		if d.DocumentID == documentID {
			return d, nil
		}
	}
	return models.Document{}, fmt.Errorf("document %s not found in knowledge base", documentID)
}
