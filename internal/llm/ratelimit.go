package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedGenerator bounds the rate of Complete calls on the wrapped
// generator. Callers block until a token is available or ctx ends.
type RateLimitedGenerator struct {
	next    TextGenerator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator allows reqPerSec sustained calls with the given burst.
func NewRateLimitedGenerator(next TextGenerator, reqPerSec float64, burst int) *RateLimitedGenerator {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedGenerator{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// Complete waits for a token and delegates.
func (g *RateLimitedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return g.next.Complete(ctx, prompt)
}

// GetModel returns the wrapped generator's model.
func (g *RateLimitedGenerator) GetModel() string {
	return g.next.GetModel()
}

var _ TextGenerator = (*RateLimitedGenerator)(nil)
