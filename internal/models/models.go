package models

import (
	"time"

	"kbindex/internal/agentout"
	"kbindex/internal/chunker"
)

// Source types recorded on every chunk.
const (
	SourceFullDocumentText = "full_document_text"
	SourceAgentOutput      = "agent_output"
)

// Document is one processed artifact handed to the pipeline. The pipeline
// never mutates it.
type Document struct {
	DocumentID   string                `json:"document_id"`
	FullText     string                `json:"full_text,omitempty"`
	AgentOutputs agentout.Value        `json:"agent_outputs,omitempty"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
	PageMap      []chunker.PageSpan    `json:"page_map,omitempty"`
	Sections     []chunker.SectionHint `json:"sections,omitempty"`
}

// Chunk is the unit of indexing. ChunkID is derived deterministically from the
// document ID, the source type and the positional path, so re-ingesting
// identical input reproduces identical IDs.
type Chunk struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	SourceType string         `json:"source_type"`
	ChunkIndex int            `json:"chunk_index"`
	Text       string         `json:"text"`
	TokenCount int            `json:"token_count,omitempty"`
	Pages      []int          `json:"pages,omitempty"`
	Sections   []string       `json:"sections,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	FieldPath  string         `json:"field_path,omitempty"`
	Meta       map[string]any `json:"metadata,omitempty"`
}

// SearchResult is one similarity hit returned by a vector store.
type SearchResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// IngestionStats summarises one ingestion call for a single document.
type IngestionStats struct {
	DocumentID     string         `json:"document_id"`
	ChunksIngested int            `json:"chunks_ingested"`
	FullTextChunks int            `json:"full_text_chunks"`
	AgentChunks    int            `json:"agent_chunks"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Integrity statuses.
const (
	IntegrityOK      = "ok"
	IntegrityMissing = "missing"
	IntegrityStale   = "stale"
)

type IntegrityItem struct {
	DocumentID     string         `json:"document_id"`
	ExpectedChunks int            `json:"expected_chunks"`
	IndexedChunks  int            `json:"indexed_chunks"`
	Status         string         `json:"status"`
	Details        map[string]any `json:"details,omitempty"`
}

type IntegrityReport struct {
	TotalExpected int             `json:"total_expected"`
	TotalIndexed  int             `json:"total_indexed"`
	Documents     []IntegrityItem `json:"documents"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// RefreshReport summarises one maintenance run.
type RefreshReport struct {
	RunID              string           `json:"run_id"`
	Schedule           string           `json:"schedule"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        time.Time        `json:"completed_at"`
	DocumentsProcessed int              `json:"documents_processed"`
	DocumentsFailed    int              `json:"documents_failed"`
	TotalChunks        int              `json:"total_chunks"`
	IngestStats        []IngestionStats `json:"ingest_stats"`
}
