package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbindex/internal/config"
	"kbindex/internal/ingest"
	"kbindex/internal/providers"
	"kbindex/internal/vectorstore"
)

var (
	flagVectorStore    string
	flagEmbedProviders string
	flagKnowledgeBase  string
	flagVerbose        bool
)

var rootCmd = &cobra.Command{
	Use:           "kbindex",
	Short:         "Chunk, embed and index processed documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVectorStore, "vector-store", "", "vector store backend (memory or pgvector)")
	rootCmd.PersistentFlags().StringVar(&flagEmbedProviders, "embed-providers", "", "embedding provider spec, e.g. openai:primary|mock")
	rootCmd.PersistentFlags().StringVar(&flagKnowledgeBase, "kb", "", "path to the knowledge base JSON file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func Execute() error {
	_ = godotenv.Load(".env")
	return rootCmd.Execute()
}

func loadConfig() config.Config {
	cfg := config.Load()
	if flagVectorStore != "" {
		cfg.VectorStoreBackend = flagVectorStore
	}
	if flagEmbedProviders != "" {
		cfg.EmbedProviders = flagEmbedProviders
	}
	if flagKnowledgeBase != "" {
		cfg.KnowledgeBasePath = flagKnowledgeBase
	}
	return cfg
}

func newLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// openStack wires the embedding manager, vector store and pipeline from the
// resolved config. The caller must Close the returned store.
func openStack(ctx context.Context, cfg config.Config, logger *zap.Logger) (vectorstore.Store, *ingest.Pipeline, error) {
	manager, err := providers.NewManager(cfg.EmbedProviders, cfg.EmbedDim,
		time.Duration(cfg.ProviderCooldownSecs)*time.Second, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedding providers: %w", err)
	}
	store, err := vectorstore.Open(ctx, cfg.VectorStoreBackend, vectorstore.Options{
		PostgresURL: cfg.PostgresURL,
		Dimension:   cfg.EmbedDim,
		Embedder:    manager,
		Log:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	pipeline := ingest.NewPipeline(store, ingest.PipelineOptions{
		ChunkSizeTokens:          cfg.ChunkSizeTokens,
		ChunkOverlapRatio:        cfg.ChunkOverlapRatio,
		AgentChunkTokenThreshold: cfg.AgentChunkThreshold,
		Concurrency:              cfg.IngestConcurrency,
		Log:                      logger,
	})
	return store, pipeline, nil
}
