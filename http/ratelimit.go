package http

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-host request rate limiting using a token bucket.
// All hosts share one configured rate; the platform origin and its content
// CDN get independent buckets.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rps      float64
}

// NewRateLimiter creates a rate limiter allowing rps requests per second per
// host. rps <= 0 disables limiting.
func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
	}
}

// Wait blocks until the rate limit allows a request for the given URL, or
// the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil || rl.rps <= 0 {
		return nil
	}
	return rl.limiter(extractHost(urlStr)).Wait(ctx)
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.rps), 1)
	rl.limiters[host] = l
	return l
}

// extractHost extracts the host (without port) from a URL string.
func extractHost(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
