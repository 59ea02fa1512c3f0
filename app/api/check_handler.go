package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Pinger is the slice of the redis client the health check needs.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// ChunkCounter reports how many chunks the vector index holds.
type ChunkCounter interface {
	Len(ctx context.Context) (int64, error)
}

type CheckHandler struct {
	rdb   Pinger
	store ChunkCounter
}

func NewCheckHandler(rdb Pinger, store ChunkCounter) *CheckHandler {
	return &CheckHandler{
		rdb:   rdb,
		store: store,
	}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	if err := h.rdb.Ping(c.Context()).Err(); err != nil {
		return NewError(fiber.StatusServiceUnavailable, "redis unreachable: "+err.Error())
	}
	chunks, err := h.store.Len(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "ok", "chunks": chunks})
}
