package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider enforces a minimum interval between outbound calls.
type RateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

func NewRateLimitedProvider(next Provider, perSecond float64) *RateLimitedProvider {
	return &RateLimitedProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (r *RateLimitedProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Generate(ctx, req)
}
