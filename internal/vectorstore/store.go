package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kbindex/internal/models"
	"kbindex/internal/providers"
	"kbindex/internal/util"
)

const (
	BackendMemory   = "memory"
	BackendPgvector = "pgvector"
)

// Embedder turns chunk texts into vectors. providers.Manager satisfies it.
type Embedder interface {
	Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error)
}

type Filter struct {
	DocumentID string
}

// Store is the indexing surface the ingestion pipeline writes through. Both
// backends embed chunk text themselves, so callers never handle raw vectors.
// Upsert rejects an empty batch with util.ErrNoChunks.
type Store interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
	Search(ctx context.Context, query string, topK int, filter Filter) ([]models.SearchResult, error)
	Close()
}

type Options struct {
	PostgresURL string
	Dimension   int
	Embedder    Embedder
	Log         *zap.Logger
}

// Open resolves a backend by name. Unknown names fail before any connection
// is attempted.
func Open(ctx context.Context, backend string, opts Options) (Store, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	switch backend {
	case BackendMemory:
		return NewMemoryStore(opts.Dimension, opts.Embedder), nil
	case BackendPgvector:
		return NewPgvectorStore(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %s", util.ErrUnknownBackend, backend)
	}
}
