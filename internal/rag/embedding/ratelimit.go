package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a remote engine. A batch counts as one
// request.
type RateLimited struct {
	Engine
	limiter *rate.Limiter
}

func NewRateLimited(e Engine, limit rate.Limit, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Engine: e, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Engine.Embed(ctx, text)
}

func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Engine.EmbedBatch(ctx, texts)
}
