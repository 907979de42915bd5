// Package ratelimit paces outbound calls to Inoreader and the model API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting implementations
type Limiter interface {
	// Wait blocks until it's safe to make another call or ctx is done.
	Wait(ctx context.Context) error
	// CanProceed returns true if a request can be made without waiting
	CanProceed() bool
	// Allow takes a slot if one is free right now and reports whether it did.
	Allow() bool
}

// New returns an Interval limiter, or a NoOp limiter when minDelay is zero.
func New(minDelay time.Duration) Limiter {
	if minDelay <= 0 {
		return NoOp{}
	}
	return NewInterval(minDelay)
}

// Interval enforces a minimum delay between calls
type Interval struct {
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewInterval creates a limiter with minimum delay between calls
func NewInterval(minDelay time.Duration) *Interval {
	return &Interval{minDelay: minDelay}
}

func (rl *Interval) Wait(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elapsed := time.Since(rl.lastCall); elapsed < rl.minDelay {
		timer := time.NewTimer(rl.minDelay - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	rl.lastCall = time.Now()
	return nil
}

func (rl *Interval) CanProceed() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return time.Since(rl.lastCall) >= rl.minDelay
}

func (rl *Interval) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.lastCall) < rl.minDelay {
		return false
	}
	rl.lastCall = time.Now()
	return true
}

// TokenBucket allows bursts of up to maxTokens calls
type TokenBucket struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(maxTokens int, refillRate time.Duration) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (rl *TokenBucket) Wait(ctx context.Context) error {
	rl.mu.Lock()
	rl.refill()

	for rl.tokens <= 0 {
		rl.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.refillRate):
		}
		rl.mu.Lock()
		rl.refill()
	}

	rl.tokens--
	rl.mu.Unlock()
	return nil
}

func (rl *TokenBucket) CanProceed() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return rl.tokens > 0
}

func (rl *TokenBucket) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}

func (rl *TokenBucket) refill() {
	now := time.Now()
	tokensToAdd := int(now.Sub(rl.lastRefill) / rl.refillRate)

	if tokensToAdd > 0 {
		rl.tokens = min(rl.tokens+tokensToAdd, rl.maxTokens)
		rl.lastRefill = now
	}
}

// NoOp performs no rate limiting
type NoOp struct{}

func (NoOp) Wait(ctx context.Context) error { return ctx.Err() }

func (NoOp) CanProceed() bool { return true }

func (NoOp) Allow() bool { return true }
