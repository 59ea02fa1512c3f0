package server

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"redisrag/app/agent"
	"redisrag/app/api"
	"redisrag/app/jobs"
	"redisrag/app/middleware"
	"redisrag/config"
	"redisrag/model"
	"redisrag/store"
)

// Server owns the HTTP app and everything behind it: the redis connection,
// vector store, semantic cache, chat history and the background scheduler.
type Server struct {
	cfg       *config.Config
	app       *fiber.App
	rdb       *redis.Client
	scheduler *jobs.Scheduler
	logger    *zap.Logger
}

// New connects to redis, creates the indexes and wires every route. With
// caching disabled the cache endpoints and the prune job are not registered
// at all.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	rdb, err := store.Open(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	vectorStore := store.NewRedisVectorStore(rdb, cfg.Redis.IndexName, cfg.Redis.KeyPrefix, cfg.Redis.VectorDim)
	if err := vectorStore.Init(ctx); err != nil {
		return nil, err
	}

	var cache store.CacheStorer
	if cfg.Cache.Enabled {
		semCache := store.NewSemanticCache(rdb, cfg.Cache.Prefix, cfg.Redis.VectorDim, cfg.Cache.MaxDistance, cfg.Cache.TTL)
		if err := semCache.Init(ctx); err != nil {
			return nil, err
		}
		cache = semCache
	}

	history := store.NewChatHistory(rdb, cfg.Memory.Prefix, cfg.Memory.Window, cfg.Memory.TTL)

	embedder, err := model.NewEmbedder(cfg.Embed, cfg.Redis.VectorDim)
	if err != nil {
		return nil, err
	}
	// LRU sits outside the limiter: cache hits never consume a token.
	embedder = model.WrapRateLimit(embedder, cfg.Embed.RPS, cfg.Embed.Burst)
	embedder = model.WrapLRUCache(embedder, cfg.Embed.CacheSize, cfg.Embed.CacheTTL)

	chat, err := model.NewChatClient(cfg.LLM)
	if err != nil {
		return nil, err
	}

	ragAgent := agent.New(vectorStore, embedder, chat, agent.Options{
		TopK:            cfg.Search.TopK,
		MaxDistance:     cfg.Search.MaxDistance,
		ContextMaxChars: cfg.Search.ContextMaxChars,
		ChunkOverlap:    cfg.Loader.ChunkOverlap,
	}, logger)

	scheduler := jobs.NewScheduler(logger)
	if cache != nil {
		pruneJob := jobs.NewCachePruneJob(cache, cfg.Cache.MaxEntries, logger)
		if err := scheduler.AddJob(pruneJob, cfg.Cache.PruneCron); err != nil {
			return nil, err
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: api.NewErrorHandler(logger),
		BodyLimit:    50 * 1024 * 1024,
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))

	var (
		checkHandler    = api.NewCheckHandler(rdb, vectorStore)
		requestHandler  = api.NewRequestHandler(ragAgent, vectorStore, embedder, cache, history, logger)
		documentHandler = api.NewDocumentHandler(vectorStore, cfg.Loader.SourceDir, logger)
		sessionHandler  = api.NewSessionHandler(history)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/ask", requestHandler.HandleAsk)
	apiv1.Post("/chat", requestHandler.HandleChat)
	apiv1.Post("/search", requestHandler.HandleSearch)

	apiv1.Post("/documents", documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Get("/documents/:id", documentHandler.HandleGet)
	apiv1.Delete("/documents/:id", documentHandler.HandleDelete)

	apiv1.Get("/sessions", sessionHandler.HandleList)
	apiv1.Get("/sessions/:id/messages", sessionHandler.HandleMessages)
	apiv1.Delete("/sessions/:id", sessionHandler.HandleClear)

	if cache != nil {
		cacheHandler := api.NewCacheHandler(cache, cfg.Cache.MaxDistance, cfg.Cache.TTL, logger)
		apiv1.Get("/cache/stats", cacheHandler.HandleStats)
		apiv1.Delete("/cache", cacheHandler.HandlePurge)
	}

	return &Server{
		cfg:       cfg,
		app:       app,
		rdb:       rdb,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// Run starts the scheduler and blocks serving HTTP.
func (s *Server) Run(ctx context.Context) error {
	s.scheduler.Start(ctx)
	s.logger.Info("server listening", zap.String("addr", s.cfg.ServerAddr))
	return s.app.Listen(s.cfg.ServerAddr)
}

// Stop drains in-flight requests, stops the scheduler and closes redis.
func (s *Server) Stop(ctx context.Context) error {
	s.scheduler.Stop()
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	err := s.rdb.Close()
	s.logger.Info("server stopped")
	return err
}
