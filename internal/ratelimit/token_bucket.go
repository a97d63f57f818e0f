// Package ratelimit guards the coordinator's client-facing HTTP surface
// (train/sync, train/async, worker upgrade) against a runaway caller,
// adapted from the teacher's resilience4g/rate_limit token-bucket limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Config is the token-bucket parameterization for one limiter instance.
type Config interface {
	GetMaxTokens() int64
	GetRefillRate() int64
	GetOpCost() int64
}

// DefaultConfig is the Config used by the CLI's default rate limit.
type DefaultConfig struct {
	MaxTokens  int64
	RefillRate int64
	OpCost     int64
}

func (c *DefaultConfig) GetMaxTokens() int64  { return c.MaxTokens }
func (c *DefaultConfig) GetRefillRate() int64 { return c.RefillRate }
func (c *DefaultConfig) GetOpCost() int64     { return c.OpCost }

// Limiter is the per-key rate-limiting interface the HTTP middleware holds.
type Limiter interface {
	Allow(cost int64) bool
}

// Factory constructs one Limiter per key.
type Factory interface {
	NewLimiter(config Config) Limiter
}

// TokenBucket should always be used by pointer — it holds a sync.Mutex.
type TokenBucket struct {
	maxTokens     int64
	refillRate    int64
	lastRefill    int64
	currentTokens float64
	mu            sync.Mutex
}

// Allow reports whether cost tokens are available, refilling first.
func (b *TokenBucket) Allow(cost int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	floatCost := float64(cost)
	if b.currentTokens >= floatCost {
		b.currentTokens -= floatCost
		return true
	}
	return false
}

func (b *TokenBucket) refill() {
	now := time.Now().UnixNano()
	toAdd := float64((now - b.lastRefill) * b.refillRate / 1e9)
	if toAdd < 1.0 {
		return
	}
	b.currentTokens = min(b.currentTokens+toAdd, float64(b.maxTokens))
	b.lastRefill = now
}

// TokenBucketFactory is the default Factory building TokenBucket limiters.
type TokenBucketFactory struct{}

func (TokenBucketFactory) NewLimiter(config Config) Limiter {
	return &TokenBucket{
		maxTokens:     config.GetMaxTokens(),
		refillRate:    config.GetRefillRate(),
		currentTokens: float64(config.GetMaxTokens()),
		lastRefill:    time.Now().UnixNano(),
	}
}
