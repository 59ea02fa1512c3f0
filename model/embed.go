package model

import (
	"context"
	"fmt"
	"math"

	"redisrag/config"
)

// Embedder turns text into a fixed-size vector. Implementations must return
// vectors of exactly Dimensions() entries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// NewEmbedder builds the embedder selected by cfg.Provider and wraps it with
// the rate limiter and the in-process LRU cache when those are enabled.
// dim is the vector size the index was created with.
func NewEmbedder(cfg config.EmbedConfig, dim int) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "ollama":
		e = NewOllamaEmbedder(cfg.APIURL, cfg.Model, dim)
	case "openai":
		oe, err := NewOpenAIEmbedder(cfg.APIURL, cfg.APIKey, cfg.Model, dim)
		if err != nil {
			return nil, err
		}
		e = oe
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.RPS > 0 {
		e = WrapRateLimit(e, cfg.RPS, cfg.Burst)
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		e = WrapLRUCache(e, cfg.CacheSize, cfg.CacheTTL)
	}
	return e, nil
}

// normalize64 scales vec to unit length in place and returns it.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
