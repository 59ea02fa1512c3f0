package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"redisrag/store"
)

// SessionHandler exposes the chat memory: list sessions, read a transcript,
// forget a session.
type SessionHandler struct {
	history store.HistoryStorer
}

func NewSessionHandler(history store.HistoryStorer) *SessionHandler {
	return &SessionHandler{history: history}
}

func (h *SessionHandler) HandleList(c *fiber.Ctx) error {
	sessions, err := h.history.Sessions(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (h *SessionHandler) HandleMessages(c *fiber.Ctx) error {
	id := c.Params("id")
	msgs, err := h.history.Messages(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"session_id": id,
		"messages":   msgs,
		"total":      len(msgs),
	})
}

func (h *SessionHandler) HandleClear(c *fiber.Ctx) error {
	id := c.Params("id")
	err := h.history.Clear(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "session")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": id})
}
