package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"kbindex/internal/activities"
	"kbindex/internal/config"
	"kbindex/internal/ingest"
	"kbindex/internal/providers"
	"kbindex/internal/vectorstore"
	"kbindex/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal("dial temporal", zap.Error(err))
	}
	defer c.Close()

	manager, err := providers.NewManager(cfg.EmbedProviders, cfg.EmbedDim,
		time.Duration(cfg.ProviderCooldownSecs)*time.Second, logger)
	if err != nil {
		logger.Fatal("build embedding providers", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := vectorstore.Open(ctx, cfg.VectorStoreBackend, vectorstore.Options{
		PostgresURL: cfg.PostgresURL,
		Dimension:   cfg.EmbedDim,
		Embedder:    manager,
		Log:         logger,
	})
	if err != nil {
		logger.Fatal("open vector store", zap.Error(err))
	}
	defer store.Close()

	pipeline := ingest.NewPipeline(store, ingest.PipelineOptions{
		ChunkSizeTokens:          cfg.ChunkSizeTokens,
		ChunkOverlapRatio:        cfg.ChunkOverlapRatio,
		AgentChunkTokenThreshold: cfg.AgentChunkThreshold,
		Concurrency:              cfg.IngestConcurrency,
		Log:                      logger,
	})

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, pipeline, logger))

	logger.Info("worker listening",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("queue", cfg.TemporalTaskQueue),
		zap.String("vector_store", cfg.VectorStoreBackend),
		zap.String("embed_providers", cfg.EmbedProviders))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
