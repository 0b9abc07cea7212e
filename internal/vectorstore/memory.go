package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"kbindex/internal/models"
	"kbindex/internal/providers"
	"kbindex/internal/util"
)

type memoryEntry struct {
	chunk  models.Chunk
	vector []float32
}

// MemoryStore is the embedded backend: a mutex-guarded map keyed by chunk ID
// with a brute-force cosine scan. It is the default for tests and the CLI.
type MemoryStore struct {
	dim      int
	embedder Embedder

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(dim int, embedder Embedder) *MemoryStore {
	return &MemoryStore{
		dim:      dim,
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return util.ErrNoChunks
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	vectors, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "upsert",
		Inputs:    texts,
		Dimension: s.dim,
	})
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		s.entries[c.ChunkID] = memoryEntry{chunk: c, vector: vectors[i]}
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.chunk.DocumentID == documentID {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.chunk.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, topK int, filter Filter) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 8
	}
	vectors, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "query",
		Inputs:    []string{query},
		Dimension: s.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vectors[0]

	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]models.SearchResult, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.DocumentID != "" && e.chunk.DocumentID != filter.DocumentID {
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:    e.chunk.ChunkID,
			DocumentID: e.chunk.DocumentID,
			Text:       e.chunk.Text,
			Score:      cosine(queryVec, e.vector),
			Payload:    chunkPayload(e.chunk),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryStore) Close() {}

func chunkPayload(c models.Chunk) map[string]any {
	payload := map[string]any{
		"source_type": c.SourceType,
		"chunk_index": c.ChunkIndex,
	}
	if c.Agent != "" {
		payload["agent"] = c.Agent
	}
	if c.FieldPath != "" {
		payload["field_path"] = c.FieldPath
	}
	for k, v := range c.Meta {
		payload[k] = v
	}
	return payload
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
