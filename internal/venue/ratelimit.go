// ratelimit.go implements token-bucket rate limiting for outbound requests
// against the venue. The venue enforces per-category limits measured over a
// rolling window; this refills continuously rather than in bursts so steady
// traffic never trips the hard limit.
//
// Three buckets are maintained, one per request category: Post, Cancel,
// Snapshot.
package venue

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is
// cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens refilled per second
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by venue request category. Each outbound
// call must wait on the appropriate bucket before the HTTP request goes out.
type RateLimiter struct {
	Post     *TokenBucket // submitting new maker orders
	Cancel   *TokenBucket // cancelling orders
	Snapshot *TokenBucket // GET book snapshots / polling
}

// RateLimits holds the capacity/rate pair for one bucket.
type RateLimits struct {
	PostCapacity, PostRate         float64
	CancelCapacity, CancelRate     float64
	SnapshotCapacity, SnapshotRate float64
}

// DefaultRateLimits are conservative defaults; production deployments should
// tune these to the venue's published limits via config.
var DefaultRateLimits = RateLimits{
	PostCapacity: 50, PostRate: 10,
	CancelCapacity: 50, CancelRate: 10,
	SnapshotCapacity: 20, SnapshotRate: 5,
}

// NewRateLimiter builds a RateLimiter from the given limits.
func NewRateLimiter(l RateLimits) *RateLimiter {
	return &RateLimiter{
		Post:     NewTokenBucket(l.PostCapacity, l.PostRate),
		Cancel:   NewTokenBucket(l.CancelCapacity, l.CancelRate),
		Snapshot: NewTokenBucket(l.SnapshotCapacity, l.SnapshotRate),
	}
}
