package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// WrapLRUCache puts an in-process, expiring LRU in front of e so repeated
// texts are not re-embedded. Entries are keyed by model name and content
// hash, so swapping the model never serves stale vectors.
func WrapLRUCache(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(l.next.ModelName(), text)
	if cached, ok := l.cache.Get(key); ok {
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := l.cache.Get(cacheKey(l.next.ModelName(), text)); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := l.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		i := missingIdx[j]
		out[i] = vec
		l.cache.Add(cacheKey(l.next.ModelName(), texts[i]), cloneEmbedding(vec))
	}
	return out, nil
}

func (l *lruEmbedder) Dimensions() int { return l.next.Dimensions() }

func (l *lruEmbedder) ModelName() string { return l.next.ModelName() }

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "|" + text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
