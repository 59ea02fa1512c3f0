package model

import (
	"context"

	"golang.org/x/time/rate"
)

// WrapRateLimit caps outgoing embedding requests at rps with the given
// burst. Wait blocks until the limiter grants a slot or ctx is done.
func WrapRateLimit(e Embedder, rps float64, burst int) Embedder {
	if e == nil || rps <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedEmbedder{
		next:    e,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type rateLimitedEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
}

func (r *rateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text)
}

func (r *rateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.EmbedBatch(ctx, texts)
}

func (r *rateLimitedEmbedder) Dimensions() int { return r.next.Dimensions() }

func (r *rateLimitedEmbedder) ModelName() string { return r.next.ModelName() }
