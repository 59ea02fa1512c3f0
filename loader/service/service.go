// Package service runs the document ingestion pipeline: a watcher feeds
// settled file paths to the loader, the loader turns them into embedded
// documents, and the service persists them to the vector store.
package service

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"redisrag/loader/internal"
	"redisrag/store"
	"redisrag/types"
)

type Service struct {
	logger *zap.Logger
	store  store.VectorStorer
	loader *internal.Loader
}

func New(storer store.VectorStorer, loader *internal.Loader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger: logger,
		store:  storer,
		loader: loader,
	}
}

// Run starts the watch, process and save goroutines and blocks until an
// interrupt or SIGTERM arrives. Shutdown drains the pipeline for up to
// five seconds before giving up.
func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Buffered so a slow embedder does not stall the watcher.
	fileChan := make(chan string, 10)
	docChan := make(chan *types.Document)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		if err := s.loader.Watch(ctx, fileChan); err != nil {
			s.logger.Error("watcher stopped", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.loader.Process(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.saveDocuments(ctx, docChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	s.logger.Info("received shutdown signal, draining pipeline...")

	cancel()
	signal.Stop(sigch)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("pipeline drained")
	case <-shutdownCtx.Done():
		s.logger.Warn("timeout waiting for pipeline to drain, forcing shutdown")
	}

	s.logger.Info("loader service stopped")
}

func (s *Service) saveDocuments(ctx context.Context, docChan <-chan *types.Document) {
	for doc := range docChan {
		s.saveDocument(ctx, doc)
	}
}

// saveDocument persists one loaded document. Unchanged files are archived
// without touching the store, changed files replace their chunks and bump
// the version.
func (s *Service) saveDocument(ctx context.Context, doc *types.Document) {
	defer s.loader.Release(doc.SourcePath)

	prev, update := s.shouldUpdate(ctx, doc)
	if !update {
		s.logger.Info("document unchanged, skipping",
			zap.String("title", doc.Title),
			zap.String("doc_id", doc.ID.String()),
		)
		s.archive(doc.SourcePath)
		return
	}

	if prev != nil {
		doc.Version = prev.Version + 1
		doc.CreatedAt = prev.CreatedAt
		if err := s.store.DeleteChunksByDocID(ctx, doc.ID); err != nil {
			s.logger.Error("failed to delete stale chunks",
				zap.String("doc_id", doc.ID.String()),
				zap.Error(err),
			)
			s.reject(doc.SourcePath)
			return
		}
	}

	if err := s.store.SaveDocument(ctx, *doc); err != nil {
		s.logger.Error("failed to save document",
			zap.String("doc_id", doc.ID.String()),
			zap.Error(err),
		)
		s.reject(doc.SourcePath)
		return
	}
	if err := s.store.SaveChunks(ctx, doc.Chunks); err != nil {
		s.logger.Error("failed to save chunks",
			zap.String("doc_id", doc.ID.String()),
			zap.Error(err),
		)
		s.reject(doc.SourcePath)
		return
	}

	s.logger.Info("document saved",
		zap.String("title", doc.Title),
		zap.String("doc_id", doc.ID.String()),
		zap.Int("chunks", doc.ChunkCount),
		zap.Int("version", doc.Version),
	)
	s.archive(doc.SourcePath)
}

// shouldUpdate reports whether doc needs to be written, returning the
// stored version when one exists. Store errors are treated as "not found"
// so a flaky read never drops a document.
func (s *Service) shouldUpdate(ctx context.Context, doc *types.Document) (*types.Document, bool) {
	prev, err := s.store.GetDocumentByID(ctx, doc.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to look up document",
				zap.String("doc_id", doc.ID.String()),
				zap.Error(err),
			)
		}
		return nil, true
	}
	return prev, doc.UpdatedAt.After(prev.UpdatedAt)
}

func (s *Service) archive(path string) {
	if _, err := s.loader.MoveToArchive(path); err != nil {
		s.logger.Warn("failed to archive file", zap.String("path", path), zap.Error(err))
	}
}

func (s *Service) reject(path string) {
	if _, err := s.loader.MoveToBad(path); err != nil {
		s.logger.Warn("failed to move file to bad dir", zap.String("path", path), zap.Error(err))
	}
}
