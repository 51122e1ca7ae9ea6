package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type limited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit caps calls to next at requestsPerMinute. A value <= 0 returns next unchanged.
func WithRateLimit(next Provider, requestsPerMinute int) Provider {
	if requestsPerMinute <= 0 {
		return next
	}
	return &limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

func (l *limited) Generate(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}
	return l.next.Generate(ctx, req)
}
