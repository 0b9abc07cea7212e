package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kbindex/internal/agentout"
	"kbindex/internal/chunker"
	"kbindex/internal/models"
	"kbindex/internal/util"
	"kbindex/internal/vectorstore"
)

// DefaultAgentChunkTokenThreshold is the token count above which a flattened
// agent segment is re-chunked instead of being indexed as a single chunk.
const DefaultAgentChunkTokenThreshold = 180

var metadataAllowList = map[string]struct{}{
	"document_id":          {},
	"filename":             {},
	"doc_type":             {},
	"processing_timestamp": {},
	"quality_score":        {},
	"confidence_score":     {},
}

// Pipeline converts processed documents into indexed chunks.
type Pipeline struct {
	store          vectorstore.Store
	chunker        *chunker.Chunker
	agentThreshold int
	concurrency    int
	log            *zap.Logger
}

type PipelineOptions struct {
	ChunkSizeTokens          int
	ChunkOverlapRatio        float64
	AgentChunkTokenThreshold int
	Concurrency              int
	Log                      *zap.Logger
}

func NewPipeline(store vectorstore.Store, opts PipelineOptions) *Pipeline {
	if opts.ChunkSizeTokens <= 0 {
		opts.ChunkSizeTokens = chunker.DefaultChunkSizeTokens
	}
	if opts.ChunkOverlapRatio <= 0 {
		opts.ChunkOverlapRatio = chunker.DefaultChunkOverlapRatio
	}
	if opts.AgentChunkTokenThreshold <= 0 {
		opts.AgentChunkTokenThreshold = DefaultAgentChunkTokenThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Pipeline{
		store:          store,
		chunker:        chunker.New(opts.ChunkSizeTokens, opts.ChunkOverlapRatio),
		agentThreshold: opts.AgentChunkTokenThreshold,
		concurrency:    opts.Concurrency,
		log:            opts.Log,
	}
}

// IngestDocument chunks one document and writes all of its chunks to the
// store in a single upsert call. With rebuild set, existing vectors for the
// document are deleted first; a failed delete is logged and ingestion
// continues, since upserts by chunk ID overwrite the live rows anyway.
func (p *Pipeline) IngestDocument(ctx context.Context, doc models.Document, rebuild bool) (models.IngestionStats, error) {
	if rebuild {
		p.log.Info("refreshing vector index", zap.String("document_id", doc.DocumentID))
		if _, err := p.store.DeleteByDocument(ctx, doc.DocumentID); err != nil {
			p.log.Warn("failed to delete existing vectors",
				zap.String("document_id", doc.DocumentID), zap.Error(err))
		}
	}

	chunks := p.GenerateChunks(doc)
	stats := models.IngestionStats{
		DocumentID: doc.DocumentID,
		Metadata:   doc.Metadata,
	}
	if len(chunks) == 0 {
		p.log.Warn("no chunks generated", zap.String("document_id", doc.DocumentID))
		return stats, nil
	}

	if err := p.store.Upsert(ctx, chunks); err != nil {
		p.log.Error("embedding ingestion failed",
			zap.String("document_id", doc.DocumentID), zap.Error(err))
		return stats, fmt.Errorf("%w: document %s: %v", util.ErrIndexWrite, doc.DocumentID, err)
	}

	for _, c := range chunks {
		if c.SourceType == models.SourceFullDocumentText {
			stats.FullTextChunks++
		} else {
			stats.AgentChunks++
		}
	}
	stats.ChunksIngested = len(chunks)
	p.log.Info("ingested chunks",
		zap.String("document_id", doc.DocumentID),
		zap.Int("chunks", stats.ChunksIngested),
		zap.Int("full_text", stats.FullTextChunks),
		zap.Int("agent", stats.AgentChunks))
	return stats, nil
}

// IngestAll processes a batch of documents with bounded concurrency. A
// document that fails is logged and dropped from the result; the returned
// stats keep the input order of the documents that succeeded, and the batch
// itself never errors.
func (p *Pipeline) IngestAll(ctx context.Context, docs []models.Document, rebuild bool) []models.IngestionStats {
	results := make([]*models.IngestionStats, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			stats, err := p.IngestDocument(gctx, doc, rebuild)
			if err != nil {
				p.log.Error("failed to ingest document",
					zap.String("document_id", doc.DocumentID), zap.Error(err))
				return nil
			}
			results[i] = &stats
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.IngestionStats, 0, len(docs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// GenerateChunks produces the full deterministic chunk set for a document
// without touching the store. Integrity checks reuse it to compute expected
// counts.
func (p *Pipeline) GenerateChunks(doc models.Document) []models.Chunk {
	chunks := make([]models.Chunk, 0, 16)
	if strings.TrimSpace(doc.FullText) != "" {
		chunks = append(chunks, p.chunkFullText(doc)...)
	}
	chunks = append(chunks, p.chunkAgentOutputs(doc)...)
	return chunks
}

func (p *Pipeline) chunkFullText(doc models.Document) []models.Chunk {
	meta := selectMetadataFields(doc.Metadata)
	hints := chunker.Hints{PageMap: doc.PageMap, Sections: doc.Sections}

	parts := p.chunker.Chunk(doc.FullText, hints)
	out := make([]models.Chunk, 0, len(parts))
	for idx, part := range parts {
		out = append(out, models.Chunk{
			ChunkID:    fmt.Sprintf("%s::full::%d", doc.DocumentID, idx),
			DocumentID: doc.DocumentID,
			SourceType: models.SourceFullDocumentText,
			ChunkIndex: idx,
			Text:       part.Text,
			TokenCount: part.TokenCount,
			Pages:      part.Pages,
			Sections:   part.Sections,
			Meta:       meta,
		})
	}
	return out
}

func (p *Pipeline) chunkAgentOutputs(doc models.Document) []models.Chunk {
	if doc.AgentOutputs.Kind() != agentout.KindObject {
		return nil
	}
	meta := selectMetadataFields(doc.Metadata)
	out := make([]models.Chunk, 0, 8)

	for _, member := range doc.AgentOutputs.Members() {
		agentName := member.Key
		segments := agentout.Flatten(agentName, member.Value)
		for segmentIdx, segment := range segments {
			text := strings.TrimSpace(segment.Text)
			if text == "" {
				continue
			}
			fieldPath := segment.FieldPath
			if fieldPath == "" {
				fieldPath = "value"
			}
			prefix := strings.ReplaceAll(
				fmt.Sprintf("%s::agent::%s::%s", doc.DocumentID, agentName, fieldPath), " ", "_")

			if chunker.EstimateTokens(text) > p.agentThreshold {
				hints := chunker.Hints{Sections: []chunker.SectionHint{{Title: fieldPath}}}
				for subIdx, sub := range p.chunker.Chunk(text, hints) {
					out = append(out, models.Chunk{
						ChunkID:    fmt.Sprintf("%s::%d", prefix, subIdx),
						DocumentID: doc.DocumentID,
						SourceType: models.SourceAgentOutput,
						ChunkIndex: subIdx,
						Text:       sub.Text,
						TokenCount: sub.TokenCount,
						Agent:      agentName,
						FieldPath:  fieldPath,
						Meta:       meta,
					})
				}
			} else {
				out = append(out, models.Chunk{
					ChunkID:    fmt.Sprintf("%s::%d", prefix, segmentIdx),
					DocumentID: doc.DocumentID,
					SourceType: models.SourceAgentOutput,
					ChunkIndex: segmentIdx,
					Text:       text,
					TokenCount: chunker.EstimateTokens(text),
					Agent:      agentName,
					FieldPath:  fieldPath,
					Meta:       meta,
				})
			}
		}
	}
	return out
}

func selectMetadataFields(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadataAllowList))
	for k, v := range metadata {
		if _, ok := metadataAllowList[k]; ok {
			out[k] = v
		}
	}
	return out
}
