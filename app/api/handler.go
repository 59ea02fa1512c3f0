package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"redisrag/app/agent"
	"redisrag/model"
	"redisrag/store"
	"redisrag/types"
)

const defaultTopK = 5

// Answerer runs the retrieval and generation chain for one question.
type Answerer interface {
	Answer(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// Searcher exposes raw vector search without generation.
type Searcher interface {
	Search(ctx context.Context, vec []float32, k int) ([]types.Chunk, error)
}

// RequestHandler serves the ask, chat and search endpoints. A nil cache
// means semantic caching is disabled and every ask goes to the model.
type RequestHandler struct {
	agent    Answerer
	search   Searcher
	embedder model.Embedder
	cache    store.CacheStorer
	history  store.HistoryStorer
	logger   *zap.Logger
}

func NewRequestHandler(agent Answerer, search Searcher, embedder model.Embedder, cache store.CacheStorer, history store.HistoryStorer, logger *zap.Logger) *RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestHandler{
		agent:    agent,
		search:   search,
		embedder: embedder,
		cache:    cache,
		history:  history,
		logger:   logger,
	}
}

// HandleAsk answers a one-off question. The prompt embedding is computed
// once and shared between the cache lookup and retrieval. A cache hit
// returns the stored answer without touching the model; cache failures are
// logged and the request proceeds as a miss.
func (h *RequestHandler) HandleAsk(c *fiber.Ctx) error {
	var params types.AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	ctx := c.Context()
	vec, err := h.embedder.Embed(ctx, params.Prompt)
	if err != nil {
		return fmt.Errorf("failed to embed prompt: %w", err)
	}

	useCache := h.cache != nil && !params.SkipCache
	if useCache {
		entry, err := h.cache.Lookup(ctx, vec)
		switch {
		case err == nil:
			h.logger.Info("semantic cache hit",
				zap.String("key", entry.Key),
				zap.Float64("distance", entry.Distance),
				zap.Int64("hits", entry.Hits),
			)
			return c.JSON(&types.AskResponse{
				Answer:     entry.Answer,
				Sources:    []types.Source{},
				Cached:     true,
				Similarity: 1 - entry.Distance,
				Timestamp:  time.Now(),
			})
		case errors.Is(err, store.ErrCacheMiss):
			h.logger.Debug("semantic cache miss", zap.Error(err))
		default:
			h.logger.Warn("semantic cache lookup failed", zap.Error(err))
		}
	}

	res, err := h.agent.Answer(ctx, agent.Request{
		Question: params.Prompt,
		Vector:   vec,
		TopK:     params.TopK,
	})
	if err != nil {
		return err
	}

	if useCache {
		entry := types.CacheEntry{
			Prompt:    params.Prompt,
			Answer:    res.Answer,
			Model:     res.Model,
			Embedding: vec,
		}
		if err := h.cache.Store(ctx, entry); err != nil {
			h.logger.Warn("failed to store answer in semantic cache", zap.Error(err))
		}
	}

	return c.JSON(&types.AskResponse{
		Answer:     res.Answer,
		Sources:    res.Sources,
		Confidence: res.Confidence,
		Timestamp:  time.Now(),
	})
}

// HandleChat answers within a session: prior turns are loaded from the
// history store, passed to the agent, and the new exchange is appended
// afterwards. The semantic cache is not consulted, answers depend on the
// conversation.
func (h *RequestHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	ctx := c.Context()
	history, err := h.history.Messages(ctx, params.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	res, err := h.agent.Answer(ctx, agent.Request{
		Question: params.Message,
		History:  history,
		TopK:     params.TopK,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = h.history.Append(ctx, params.SessionID,
		types.ChatMessage{Role: types.RoleUser, Content: params.Message, CreatedAt: now},
		types.ChatMessage{Role: types.RoleAssistant, Content: res.Answer, CreatedAt: now},
	)
	if err != nil {
		return fmt.Errorf("failed to append session history: %w", err)
	}

	return c.JSON(&types.ChatResponse{
		SessionID:  params.SessionID,
		Answer:     res.Answer,
		Sources:    res.Sources,
		Confidence: res.Confidence,
		Timestamp:  time.Now(),
	})
}

// HandleSearch embeds the query and returns the nearest chunks as-is, no
// generation involved.
func (h *RequestHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	ctx := c.Context()
	vec, err := h.embedder.Embed(ctx, params.Query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	topK := params.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	chunks, err := h.search.Search(ctx, vec, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := make([]types.SearchResult, len(chunks))
	for i, ch := range chunks {
		results[i] = types.SearchResult{
			DocID:    ch.DocID.String(),
			Title:    ch.Title,
			Section:  ch.Section,
			Content:  ch.Content,
			Index:    ch.Index,
			Distance: ch.Distance,
		}
	}
	return c.JSON(&types.SearchResponse{
		Results:   results,
		Total:     len(results),
		Timestamp: time.Now(),
	})
}
