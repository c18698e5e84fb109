package http

import (
	"sync"
	"time"
)

// Breaker trips after repeated consecutive transport failures against a host,
// so a run against a dead network fails fast instead of burning the retry
// budget on every lecture. Only transport-level failures count; an HTTP
// status means the host is reachable.
type Breaker struct {
	mu       sync.Mutex
	failures map[string]int
	openedAt map[string]time.Time

	threshold int
	cooldown  time.Duration
}

// BreakerConfig configures failure thresholds.
type BreakerConfig struct {
	// Threshold is the number of consecutive transport failures that trips
	// the breaker for a host.
	Threshold int
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{
		failures:  make(map[string]int),
		openedAt:  make(map[string]time.Time),
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Allow reports whether a request to the host may proceed. It returns
// ErrUnavailable while the breaker is open.
func (b *Breaker) Allow(host string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	opened, open := b.openedAt[host]
	if !open {
		return nil
	}
	if time.Since(opened) >= b.cooldown {
		// Half-open: let one request through to probe
		delete(b.openedAt, host)
		b.failures[host] = b.threshold - 1
		return nil
	}
	return ErrUnavailable
}

// RecordFailure records a transport failure for the host.
func (b *Breaker) RecordFailure(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures[host]++
	if b.failures[host] >= b.threshold {
		if _, open := b.openedAt[host]; !open {
			b.openedAt[host] = time.Now()
		}
	}
}

// RecordSuccess resets the failure count for the host.
func (b *Breaker) RecordSuccess(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.failures, host)
	delete(b.openedAt, host)
}
