package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"redisrag/config"
	"redisrag/loader/internal"
	"redisrag/loader/service"
	"redisrag/logging"
	"redisrag/model"
	"redisrag/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("error loading .env file: %v", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	rdb, err := store.Open(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	vectorStore := store.NewRedisVectorStore(rdb, cfg.Redis.IndexName, cfg.Redis.KeyPrefix, cfg.Redis.VectorDim)
	if err := vectorStore.Init(ctx); err != nil {
		logger.Fatal("failed to create vector index", zap.Error(err))
	}

	embedder, err := model.NewEmbedder(cfg.Embed, cfg.Redis.VectorDim)
	if err != nil {
		logger.Fatal("failed to build embedder", zap.Error(err))
	}
	rateLimited := model.WrapRateLimit(embedder, cfg.Embed.RPS, cfg.Embed.Burst)

	loader, err := internal.NewLoader(cfg.Loader, rateLimited, cfg.Embed.BatchSize, logger)
	if err != nil {
		logger.Fatal("failed to set up loader", zap.Error(err))
	}

	service.New(vectorStore, loader, logger).Run()
}
