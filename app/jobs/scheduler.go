// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps robfig/cron: one entry per job, overlapping runs of the
// same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *zap.Logger
	ctx     context.Context
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// AddJob registers job under spec. Spec uses the standard five-field cron
// format or a descriptor like "@every 10m".
func (s *Scheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := s.logger.With(zap.String("job", name), zap.String("spec", spec))
	entryID, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		logger.Error("failed to schedule job", zap.Error(err))
		return err
	}
	s.entries[name] = entryID
	logger.Info("job scheduled")
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Info("job skipped: still running",
				zap.String("job", job.Name()),
				zap.String("spec", spec),
			)
			return
		}
		defer running.Store(false)

		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		logger := s.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))
		start := time.Now()
		logger.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}
