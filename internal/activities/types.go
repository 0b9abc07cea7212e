package activities

import "kbindex/internal/models"

type ListDocumentsInput struct {
	KnowledgeBasePath string `json:"knowledge_base_path"`
}

type ListDocumentsOutput struct {
	DocumentIDs []string `json:"document_ids"`
}

type IngestDocumentInput struct {
	KnowledgeBasePath string `json:"knowledge_base_path"`
	DocumentID        string `json:"document_id"`
	Rebuild           bool   `json:"rebuild"`
}

type IngestDocumentOutput struct {
	Stats models.IngestionStats `json:"stats"`
}

type IntegrityCheckInput struct {
	KnowledgeBasePath string `json:"knowledge_base_path"`
}

type IntegrityCheckOutput struct {
	Report models.IntegrityReport `json:"report"`
}

type WriteRefreshReportInput struct {
	Report models.RefreshReport `json:"report"`
}

type WriteRefreshReportOutput struct {
	ReportPath string `json:"report_path"`
}
