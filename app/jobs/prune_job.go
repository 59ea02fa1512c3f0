package jobs

import (
	"context"

	"go.uber.org/zap"

	"redisrag/store"
)

// CachePruneJob trims the semantic cache back to its entry budget, oldest
// answers first.
type CachePruneJob struct {
	cache      store.CacheStorer
	maxEntries int
	logger     *zap.Logger
}

func NewCachePruneJob(cache store.CacheStorer, maxEntries int, logger *zap.Logger) *CachePruneJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachePruneJob{
		cache:      cache,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

func (j *CachePruneJob) Name() string {
	return "semantic_cache_prune"
}

func (j *CachePruneJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	maxEntries := j.maxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	removed, err := j.cache.Prune(ctx, maxEntries)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logger.Info("semantic cache pruned",
			zap.Int64("removed", removed),
			zap.Int("max_entries", maxEntries),
		)
	}
	return nil
}
