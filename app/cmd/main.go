package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"redisrag/app/server"
	"redisrag/config"
	"redisrag/logging"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	go func() {
		if err := s.Run(ctx); err != nil {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	logger.Info("received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
