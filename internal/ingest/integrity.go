package ingest

import (
	"context"
	"fmt"
	"time"

	"kbindex/internal/models"
)

// RunIntegrityCheck compares the chunk count each document would produce
// today against what the store actually holds. Fewer indexed chunks than
// expected means missing data; more means stale leftovers from an earlier
// chunking of the same document.
func (p *Pipeline) RunIntegrityCheck(ctx context.Context, docs []models.Document) (models.IntegrityReport, error) {
	report := models.IntegrityReport{
		Documents:   make([]models.IntegrityItem, 0, len(docs)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, doc := range docs {
		expected := len(p.GenerateChunks(doc))
		indexed, err := p.store.CountByDocument(ctx, doc.DocumentID)
		if err != nil {
			return models.IntegrityReport{}, fmt.Errorf("count indexed chunks for %s: %w", doc.DocumentID, err)
		}

		status := models.IntegrityOK
		if indexed < expected {
			status = models.IntegrityMissing
		} else if indexed > expected {
			status = models.IntegrityStale
		}

		item := models.IntegrityItem{
			DocumentID:     doc.DocumentID,
			ExpectedChunks: expected,
			IndexedChunks:  indexed,
			Status:         status,
		}
		if filename, ok := doc.Metadata["filename"]; ok {
			item.Details = map[string]any{"filename": filename}
		}
		report.Documents = append(report.Documents, item)
		report.TotalExpected += expected
		report.TotalIndexed += indexed
	}
	return report, nil
}
