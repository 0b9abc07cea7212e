package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbindex/internal/agentout"
	"kbindex/internal/models"
	"kbindex/internal/providers"
	"kbindex/internal/util"
	"kbindex/internal/vectorstore"
)

func newTestPipeline(t *testing.T) (*Pipeline, vectorstore.Store) {
	t.Helper()
	store := vectorstore.NewMemoryStore(32, providers.NewMockProvider(32))
	return NewPipeline(store, PipelineOptions{}), store
}

func agentOutputs(members ...agentout.Member) agentout.Value {
	return agentout.Object(members...)
}

func sampleDocument() models.Document {
	return models.Document{
		DocumentID: "doc-1",
		FullText:   "Intake notes describing the first session.\n\nFollow-up plan with next steps.",
		AgentOutputs: agentOutputs(
			agentout.Member{Key: "clinical_content", Value: agentout.Object(
				agentout.Member{Key: "summary", Value: agentout.String("Short clinical summary.")},
				agentout.Member{Key: "quality", Value: agentout.Number("3")},
			)},
		),
		Metadata: map[string]any{
			"document_id": "doc-1",
			"filename":    "intake.pdf",
			"doc_type":    "intake",
			"internal_id": 42,
		},
	}
}

func TestGenerateChunksDeterministicIDs(t *testing.T) {
	p, _ := newTestPipeline(t)
	doc := sampleDocument()

	first := p.GenerateChunks(doc)
	second := p.GenerateChunks(doc)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}

	assert.Equal(t, "doc-1::full::0", first[0].ChunkID)
}

func TestGenerateChunksAgentSegmentIDs(t *testing.T) {
	p, _ := newTestPipeline(t)
	chunks := p.GenerateChunks(sampleDocument())

	var ids []string
	for _, c := range chunks {
		if c.SourceType == models.SourceAgentOutput {
			ids = append(ids, c.ChunkID)
		}
	}
	assert.Contains(t, ids, "doc-1::agent::clinical_content::summary::0")
	assert.Contains(t, ids, "doc-1::agent::clinical_content::quality::1")
}

func TestGenerateChunksReplacesSpacesInChunkID(t *testing.T) {
	p, _ := newTestPipeline(t)
	doc := models.Document{
		DocumentID: "doc 1",
		AgentOutputs: agentOutputs(
			agentout.Member{Key: "seo content", Value: agentout.String("keyword list")},
		),
	}
	chunks := p.GenerateChunks(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc_1::agent::seo_content::seo_content::0", chunks[0].ChunkID)
	assert.Equal(t, "seo content", chunks[0].Agent)
}

func TestGenerateChunksLongAgentSegmentIsRechunked(t *testing.T) {
	p, _ := newTestPipeline(t)
	long := strings.Repeat("token ", 400)
	doc := models.Document{
		DocumentID: "doc-1",
		AgentOutputs: agentOutputs(
			agentout.Member{Key: "research_content", Value: agentout.Object(
				agentout.Member{Key: "findings", Value: agentout.String(long)},
			)},
		),
	}

	chunks := p.GenerateChunks(doc)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, models.SourceAgentOutput, c.SourceType)
		assert.Equal(t, "findings", c.FieldPath)
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, c.TokenCount, 900)
	}
}

func TestGenerateChunksSkipsEmptyFullText(t *testing.T) {
	p, _ := newTestPipeline(t)
	doc := sampleDocument()
	doc.FullText = "   \n\n  "

	for _, c := range p.GenerateChunks(doc) {
		assert.Equal(t, models.SourceAgentOutput, c.SourceType)
	}
}

func TestGenerateChunksMetadataAllowList(t *testing.T) {
	p, _ := newTestPipeline(t)
	chunks := p.GenerateChunks(sampleDocument())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Contains(t, c.Meta, "filename")
		assert.Contains(t, c.Meta, "doc_type")
		assert.NotContains(t, c.Meta, "internal_id")
	}
}

func TestIngestDocumentStats(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	stats, err := p.IngestDocument(ctx, sampleDocument(), false)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", stats.DocumentID)
	assert.Equal(t, stats.FullTextChunks+stats.AgentChunks, stats.ChunksIngested)
	assert.Equal(t, 1, stats.FullTextChunks)
	assert.Equal(t, 2, stats.AgentChunks)

	n, err := store.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, stats.ChunksIngested, n)
}

func TestIngestDocumentNoChunksIsNotAnError(t *testing.T) {
	p, _ := newTestPipeline(t)

	stats, err := p.IngestDocument(context.Background(), models.Document{DocumentID: "empty-doc"}, false)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksIngested)
}

func TestIngestDocumentRebuildRemovesStaleChunks(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	doc := sampleDocument()
	_, err := p.IngestDocument(ctx, doc, false)
	require.NoError(t, err)

	// Shrink the document so a plain re-ingest would leave stale rows behind.
	doc.AgentOutputs = agentOutputs(
		agentout.Member{Key: "clinical_content", Value: agentout.Object(
			agentout.Member{Key: "summary", Value: agentout.String("Short clinical summary.")},
		)},
	)
	stats, err := p.IngestDocument(ctx, doc, true)
	require.NoError(t, err)

	n, err := store.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, stats.ChunksIngested, n)
}

type flakyStore struct {
	vectorstore.Store
	deleteErr error
	upsertErr func(chunks []models.Chunk) error
}

func (f *flakyStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.Store.DeleteByDocument(ctx, documentID)
}

func (f *flakyStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if f.upsertErr != nil {
		if err := f.upsertErr(chunks); err != nil {
			return err
		}
	}
	return f.Store.Upsert(ctx, chunks)
}

func TestIngestDocumentRebuildContinuesPastDeleteFailure(t *testing.T) {
	inner := vectorstore.NewMemoryStore(32, providers.NewMockProvider(32))
	store := &flakyStore{Store: inner, deleteErr: errors.New("index offline")}
	p := NewPipeline(store, PipelineOptions{})

	stats, err := p.IngestDocument(context.Background(), sampleDocument(), true)
	require.NoError(t, err)
	assert.Positive(t, stats.ChunksIngested)
}

func TestIngestDocumentUpsertFailureWrapsIndexWrite(t *testing.T) {
	inner := vectorstore.NewMemoryStore(32, providers.NewMockProvider(32))
	store := &flakyStore{Store: inner, upsertErr: func([]models.Chunk) error {
		return errors.New("connection reset")
	}}
	p := NewPipeline(store, PipelineOptions{})

	_, err := p.IngestDocument(context.Background(), sampleDocument(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrIndexWrite)
}

func TestIngestAllKeepsSuccessesInInputOrder(t *testing.T) {
	inner := vectorstore.NewMemoryStore(32, providers.NewMockProvider(32))
	store := &flakyStore{Store: inner, upsertErr: func(chunks []models.Chunk) error {
		if len(chunks) > 0 && chunks[0].DocumentID == "doc-b" {
			return errors.New("write rejected")
		}
		return nil
	}}
	p := NewPipeline(store, PipelineOptions{})

	docs := []models.Document{
		{DocumentID: "doc-a", FullText: "first document body"},
		{DocumentID: "doc-b", FullText: "second document body"},
		{DocumentID: "doc-c", FullText: "third document body"},
	}
	stats := p.IngestAll(context.Background(), docs, false)
	require.Len(t, stats, 2)
	assert.Equal(t, "doc-a", stats[0].DocumentID)
	assert.Equal(t, "doc-c", stats[1].DocumentID)
}

type recordingStore struct {
	vectorstore.Store
	deletes  []string
	upserted [][]models.Chunk
}

func (r *recordingStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	r.deletes = append(r.deletes, documentID)
	return r.Store.DeleteByDocument(ctx, documentID)
}

func (r *recordingStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	r.upserted = append(r.upserted, chunks)
	return r.Store.Upsert(ctx, chunks)
}

func TestIngestDocumentEndToEnd(t *testing.T) {
	inner := vectorstore.NewMemoryStore(32, providers.NewMockProvider(32))
	store := &recordingStore{Store: inner}
	p := NewPipeline(store, PipelineOptions{})
	ctx := context.Background()

	doc := models.Document{
		DocumentID: "doc-1",
		FullText:   "AAAA BBBB CCCC DDDD",
		AgentOutputs: agentOutputs(
			agentout.Member{Key: "summary", Value: agentout.String("short result")},
		),
		Metadata: map[string]any{"filename": "doc-1.pdf"},
	}

	stats, err := p.IngestDocument(ctx, doc, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunksIngested)
	assert.Empty(t, store.deletes)
	require.Len(t, store.upserted, 1)

	first := store.upserted[0]
	require.Len(t, first, 2)
	assert.Equal(t, models.SourceFullDocumentText, first[0].SourceType)
	assert.Equal(t, "doc-1::full::0", first[0].ChunkID)
	assert.Equal(t, models.SourceAgentOutput, first[1].SourceType)
	assert.Equal(t, "summary", first[1].Agent)
	assert.Equal(t, "summary", first[1].FieldPath)
	assert.Equal(t, "doc-1.pdf", first[1].Meta["filename"])

	// Rebuild issues exactly one delete, then re-upserts identical IDs.
	_, err = p.IngestDocument(ctx, doc, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, store.deletes)
	require.Len(t, store.upserted, 2)
	second := store.upserted[1]
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ChunkID, second[0].ChunkID)
	assert.Equal(t, first[1].ChunkID, second[1].ChunkID)
}

func TestRunIntegrityCheckStatuses(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	okDoc := sampleDocument()
	_, err := p.IngestDocument(ctx, okDoc, false)
	require.NoError(t, err)

	missingDoc := models.Document{DocumentID: "doc-missing", FullText: "never indexed text"}

	staleDoc := models.Document{DocumentID: "doc-stale", FullText: "original body"}
	_, err = p.IngestDocument(ctx, staleDoc, false)
	require.NoError(t, err)
	extra := models.Chunk{
		ChunkID:    "doc-stale::full::9",
		DocumentID: "doc-stale",
		SourceType: models.SourceFullDocumentText,
		ChunkIndex: 9,
		Text:       "leftover from an older chunking",
	}
	require.NoError(t, store.Upsert(ctx, []models.Chunk{extra}))

	report, err := p.RunIntegrityCheck(ctx, []models.Document{okDoc, missingDoc, staleDoc})
	require.NoError(t, err)
	require.Len(t, report.Documents, 3)

	byID := map[string]models.IntegrityItem{}
	for _, item := range report.Documents {
		byID[item.DocumentID] = item
	}
	assert.Equal(t, models.IntegrityOK, byID["doc-1"].Status)
	assert.Equal(t, models.IntegrityMissing, byID["doc-missing"].Status)
	assert.Equal(t, models.IntegrityStale, byID["doc-stale"].Status)
	assert.Equal(t, byID["doc-stale"].ExpectedChunks+1, byID["doc-stale"].IndexedChunks)
	assert.Equal(t, report.TotalExpected+1, report.TotalIndexed)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestRunIntegrityCheckIncludesFilenameDetail(t *testing.T) {
	p, _ := newTestPipeline(t)
	doc := sampleDocument()
	report, err := p.RunIntegrityCheck(context.Background(), []models.Document{doc})
	require.NoError(t, err)
	require.Len(t, report.Documents, 1)
	assert.Equal(t, "intake.pdf", report.Documents[0].Details["filename"])
}
