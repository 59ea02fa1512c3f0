package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"redisrag/store"
)

// CacheHandler exposes semantic cache stats and a purge switch.
type CacheHandler struct {
	cache     store.CacheStorer
	threshold float64
	ttl       time.Duration
	logger    *zap.Logger
}

func NewCacheHandler(cache store.CacheStorer, threshold float64, ttl time.Duration, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{
		cache:     cache,
		threshold: threshold,
		ttl:       ttl,
		logger:    logger,
	}
}

func (h *CacheHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.cache.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"entries":      stats.Entries,
		"hits":         stats.Hits,
		"misses":       stats.Misses,
		"hit_rate":     stats.HitRate,
		"max_distance": h.threshold,
		"ttl_seconds":  int64(h.ttl.Seconds()),
	})
}

func (h *CacheHandler) HandlePurge(c *fiber.Ctx) error {
	purged, err := h.cache.Purge(c.Context())
	if err != nil {
		return err
	}
	h.logger.Info("semantic cache purged", zap.Int64("entries", purged))
	return c.JSON(fiber.Map{"purged": purged})
}
