package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"kbindex/internal/api"
	"kbindex/internal/config"
	"kbindex/internal/ingest"
	"kbindex/internal/providers"
	"kbindex/internal/vectorstore"
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

	srv := api.NewServer(cfg, store, pipeline, c, logger)
	logger.Info("api listening",
		zap.String("addr", cfg.APIAddr),
		zap.String("vector_store", cfg.VectorStoreBackend),
		zap.String("embed_providers", cfg.EmbedProviders))
	if err := http.ListenAndServe(cfg.APIAddr, srv.Routes()); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}
