package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"kbindex/internal/models"
	"kbindex/internal/providers"
	"kbindex/internal/util"
)

// PgvectorStore is the client/server backend: Postgres with the pgvector
// extension, one row per chunk, cosine distance via the <=> operator.
type PgvectorStore struct {
	pool     *pgxpool.Pool
	dim      int
	embedder Embedder
	log      *zap.Logger
}

var _ Store = (*PgvectorStore)(nil)

func NewPgvectorStore(ctx context.Context, opts Options) (*PgvectorStore, error) {
	cfg, err := pgxpool.ParseConfig(opts.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PgvectorStore{pool: pool, dim: opts.Dimension, embedder: opts.Embedder, log: opts.Log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgvectorStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS kb_chunks (
  chunk_id    TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  source_type TEXT NOT NULL,
  chunk_index INT NOT NULL,
  text        TEXT NOT NULL,
  token_count INT NOT NULL DEFAULT 0,
  agent       TEXT NOT NULL DEFAULT '',
  field_path  TEXT NOT NULL DEFAULT '',
  metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
  embedding   vector(%d),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.dim),
		`CREATE INDEX IF NOT EXISTS kb_chunks_document_idx ON kb_chunks (document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure chunk schema: %w", err)
		}
	}
	return nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i, c := range chunks {
		meta, err := json.Marshal(c.Meta)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ChunkID, err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO kb_chunks (chunk_id, document_id, source_type, chunk_index, text, token_count, agent, field_path, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, now())
ON CONFLICT (chunk_id)
DO UPDATE SET
  document_id = EXCLUDED.document_id,
  source_type = EXCLUDED.source_type,
  chunk_index = EXCLUDED.chunk_index,
  text = EXCLUDED.text,
  token_count = EXCLUDED.token_count,
  agent = EXCLUDED.agent,
  field_path = EXCLUDED.field_path,
  metadata = EXCLUDED.metadata,
  embedding = EXCLUDED.embedding,
  updated_at = now()`,
			c.ChunkID, c.DocumentID, c.SourceType, c.ChunkIndex,
			util.SanitizeText(c.Text), c.TokenCount, c.Agent, c.FieldPath,
			meta, ToLiteral(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (s *PgvectorStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: document %s: %v", util.ErrIndexDelete, documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgvectorStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks for %s: %w", documentID, err)
	}
	return n, nil
}

func (s *PgvectorStore) Search(ctx context.Context, query string, topK int, filter Filter) ([]models.SearchResult, error) {
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
	vecLiteral := ToLiteral(vectors[0])

	args := []any{vecLiteral, topK}
	filterSQL := ""
	if strings.TrimSpace(filter.DocumentID) != "" {
		filterSQL = " AND document_id = $3"
		args = append(args, filter.DocumentID)
	}

	sql := `
SELECT chunk_id,
       document_id,
       text,
       1 - (embedding <=> $1::vector) AS score,
       source_type,
       chunk_index,
       agent,
       field_path,
       metadata
FROM kb_chunks
WHERE embedding IS NOT NULL` + filterSQL + `
ORDER BY embedding <=> $1::vector
LIMIT $2`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, topK)
	for rows.Next() {
		var r models.SearchResult
		var c models.Chunk
		var meta []byte
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &r.Score,
			&c.SourceType, &c.ChunkIndex, &c.Agent, &c.FieldPath, &meta); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Meta); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", r.ChunkID, err)
			}
		}
		r.Payload = chunkPayload(c)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func (s *PgvectorStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// ToLiteral renders a vector as the pgvector text literal form.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
