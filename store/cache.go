package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"redisrag/types"
)

// CacheStorer is the semantic answer cache consulted before the LLM.
type CacheStorer interface {
	Init(context.Context) error
	Lookup(context.Context, []float32) (*types.CacheEntry, error)
	Store(context.Context, types.CacheEntry) error
	Purge(context.Context) (int64, error)
	Prune(context.Context, int) (int64, error)
	Len(context.Context) (int64, error)
	Stats(context.Context) (types.CacheStats, error)
}

// SemanticCache stores answered prompts as hashes at {prefix}:{sha256(prompt)}
// covered by a FLAT vector index over the prompt embedding. Lookup returns
// the nearest cached prompt only when its cosine distance stays at or below
// the configured threshold, so paraphrased prompts reuse answers while
// unrelated ones fall through to the model.
type SemanticCache struct {
	client    *redis.Client
	index     string
	prefix    string
	dim       int
	threshold float64
	ttl       time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewSemanticCache(client *redis.Client, prefix string, dim int, threshold float64, ttl time.Duration) *SemanticCache {
	return &SemanticCache{
		client:    client,
		index:     prefix + ":idx",
		prefix:    prefix,
		dim:       dim,
		threshold: threshold,
		ttl:       ttl,
	}
}

// Init creates the cache index. The entry set is expected to stay small, so
// the vector field is FLAT (exact search) rather than HNSW.
func (c *SemanticCache) Init(ctx context.Context) error {
	err := c.client.FTCreate(ctx, c.index,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{c.prefix + ":"},
		},
		&redis.FieldSchema{FieldName: "prompt", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "model", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "created_at", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
		&redis.FieldSchema{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				FlatOptions: &redis.FTFlatOptions{
					Type:           "FLOAT32",
					Dim:            c.dim,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if indexExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create cache index %s: %w", c.index, err)
	}
	return nil
}

// Lookup returns the cached entry nearest to vec, or ErrCacheMiss when the
// cache is empty or the nearest prompt sits beyond the distance threshold.
// A hit bumps the entry's hit counter.
func (c *SemanticCache) Lookup(ctx context.Context, vec []float32) (*types.CacheEntry, error) {
	if len(vec) != c.dim {
		return nil, fmt.Errorf("%w: got %d, cache expects %d", ErrDimensionMismatch, len(vec), c.dim)
	}

	res, err := c.client.FTSearchWithArgs(ctx, c.index,
		"*=>[KNN 1 @embedding $vec AS vector_distance]",
		&redis.FTSearchOptions{
			Return: []redis.FTSearchReturn{
				{FieldName: "prompt"},
				{FieldName: "answer"},
				{FieldName: "model"},
				{FieldName: "created_at"},
				{FieldName: "vector_distance"},
			},
			SortBy:         []redis.FTSearchSortBy{{FieldName: "vector_distance", Asc: true}},
			Limit:          1,
			Params:         map[string]interface{}{"vec": encodeVector(vec)},
			DialectVersion: 2,
		},
	).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	if len(res.Docs) == 0 {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}

	doc := res.Docs[0]
	distance, _ := strconv.ParseFloat(doc.Fields["vector_distance"], 64)
	if distance > c.threshold {
		c.misses.Add(1)
		return nil, fmt.Errorf("nearest prompt at distance %.4f, threshold %.4f: %w",
			distance, c.threshold, ErrCacheMiss)
	}

	hits, err := c.client.HIncrBy(ctx, doc.ID, "hits", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to bump hit count: %w", err)
	}
	c.hits.Add(1)

	entry := &types.CacheEntry{
		Key:      doc.ID,
		Prompt:   doc.Fields["prompt"],
		Answer:   doc.Fields["answer"],
		Model:    doc.Fields["model"],
		Distance: distance,
		Hits:     hits,
	}
	if raw := doc.Fields["created_at"]; raw != "" {
		if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
			entry.CreatedAt = time.Unix(sec, 0)
		}
	}
	return entry, nil
}

// Store writes entry under {prefix}:{sha256(prompt)} with the cache TTL.
// Storing the same prompt again overwrites the previous answer.
func (c *SemanticCache) Store(ctx context.Context, entry types.CacheEntry) error {
	if len(entry.Embedding) != c.dim {
		return fmt.Errorf("%w: got %d, cache expects %d", ErrDimensionMismatch, len(entry.Embedding), c.dim)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	key := c.entryKey(entry.Prompt)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"prompt":     entry.Prompt,
		"answer":     entry.Answer,
		"model":      entry.Model,
		"created_at": createdAt.Unix(),
		"hits":       0,
		"embedding":  encodeVector(entry.Embedding),
	})
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Purge deletes every cache entry and resets the in-process counters.
func (c *SemanticCache) Purge(ctx context.Context) (int64, error) {
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+":*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return deleted, nil
}

// Prune removes the oldest entries until at most max remain. Entries age by
// their created_at field, not by last hit.
func (c *SemanticCache) Prune(ctx context.Context, max int) (int64, error) {
	if max < 0 {
		max = 0
	}
	total, err := c.Len(ctx)
	if err != nil {
		return 0, err
	}
	excess := total - int64(max)
	if excess <= 0 {
		return 0, nil
	}

	res, err := c.client.FTSearchWithArgs(ctx, c.index, "*", &redis.FTSearchOptions{
		NoContent: true,
		SortBy:    []redis.FTSearchSortBy{{FieldName: "created_at", Asc: true}},
		Limit:     int(excess),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list oldest entries: %w", err)
	}

	keys := make([]string, 0, len(res.Docs))
	for _, doc := range res.Docs {
		keys = append(keys, doc.ID)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.client.Del(ctx, keys...).Result()
}

// Len returns the number of live cache entries.
func (c *SemanticCache) Len(ctx context.Context) (int64, error) {
	res, err := c.client.FTSearchWithArgs(ctx, c.index, "*", &redis.FTSearchOptions{
		CountOnly: true,
	}).Result()
	if err != nil {
		return 0, err
	}
	return int64(res.Total), nil
}

// Stats combines the entry count with the hit/miss counters kept since this
// process started.
func (c *SemanticCache) Stats(ctx context.Context) (types.CacheStats, error) {
	entries, err := c.Len(ctx)
	if err != nil {
		return types.CacheStats{}, err
	}
	stats := types.CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		stats.HitRate = float64(stats.Hits) / float64(lookups)
	}
	return stats, nil
}

func (c *SemanticCache) entryKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}
