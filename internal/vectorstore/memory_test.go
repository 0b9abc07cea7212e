package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbindex/internal/models"
	"kbindex/internal/providers"
	"kbindex/internal/util"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore(64, providers.NewMockProvider(64))
}

func testChunk(docID string, idx int, text string) models.Chunk {
	return models.Chunk{
		ChunkID:    docID + "::full::" + string(rune('0'+idx)),
		DocumentID: docID,
		SourceType: models.SourceFullDocumentText,
		ChunkIndex: idx,
		Text:       text,
	}
}

func TestMemoryStoreUpsertReplacesByChunkID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []models.Chunk{testChunk("doc-1", 0, "first draft")}))
	require.NoError(t, s.Upsert(ctx, []models.Chunk{testChunk("doc-1", 0, "revised text")}))

	n, err := s.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := s.Search(ctx, "revised text", 1, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "revised text", hits[0].Text)
}

func TestMemoryStoreUpsertRejectsEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	err := s.Upsert(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrNoChunks)
}

func TestMemoryStoreDeleteByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []models.Chunk{
		testChunk("doc-1", 0, "alpha"),
		testChunk("doc-1", 1, "beta"),
		testChunk("doc-2", 0, "gamma"),
	}))

	removed, err := s.DeleteByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := s.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CountByDocument(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreSearchRanksExactMatchFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []models.Chunk{
		testChunk("doc-1", 0, "thermal expansion of copper pipes"),
		testChunk("doc-1", 1, "quarterly revenue projections"),
	}))

	// The mock embedder hashes text, so an identical query embeds to the
	// identical vector and scores 1.0 against its own chunk.
	hits, err := s.Search(ctx, "thermal expansion of copper pipes", 2, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "thermal expansion of copper pipes", hits[0].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemoryStoreSearchFilterByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []models.Chunk{
		testChunk("doc-1", 0, "alpha"),
		testChunk("doc-2", 0, "alpha"),
	}))

	hits, err := s.Search(ctx, "alpha", 10, Filter{DocumentID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-2", hits[0].DocumentID)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "qdrant", Options{Dimension: 8})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrUnknownBackend)
}

func TestOpenMemoryBackend(t *testing.T) {
	s, err := Open(context.Background(), BackendMemory, Options{
		Dimension: 8,
		Embedder:  providers.NewMockProvider(8),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(context.Background(), []models.Chunk{testChunk("doc-1", 0, "hello")}))
	n, err := s.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
