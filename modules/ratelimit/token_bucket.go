package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is an in-process token bucket. It is used per push connection
// and, keyed by client, as the local gateway limiter.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket holding capacity tokens and refilling
// at refillRate tokens per second.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow takes one token if available.
func (b *TokenBucket) Allow() bool {
	return b.take().Allowed
}

func (b *TokenBucket) take() *Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}

	res := &Result{ResetAt: now.Add(b.durationFor(b.capacity - b.tokens))}
	if b.tokens >= 1 {
		b.tokens--
		res.Allowed = true
		res.Remaining = int(b.tokens)
		res.ResetAt = now.Add(b.durationFor(b.capacity - b.tokens))
		return res
	}
	res.RetryAfter = b.durationFor(1 - b.tokens)
	return res
}

func (b *TokenBucket) durationFor(tokens float64) time.Duration {
	if b.refillRate <= 0 || tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / b.refillRate * float64(time.Second))
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets
// idle for a full window are pruned.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	config  Config
	now     func() time.Time
	calls   int
}

var _ Limiter = (*LocalLimiter)(nil)

// NewLocalLimiter creates an in-process limiter for config.
func NewLocalLimiter(config Config) *LocalLimiter {
	return newLocalLimiter(config, time.Now)
}

func newLocalLimiter(config Config, now func() time.Time) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		now:     now,
	}
}

// Allow takes a token from the bucket of key.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.calls++
	if l.calls%1024 == 0 {
		l.pruneLocked()
	}
	bucket, ok := l.buckets[key]
	if !ok {
		rate := float64(l.config.RequestsPerWindow) / l.config.WindowSize.Seconds()
		bucket = newTokenBucket(l.config.RequestsPerWindow, rate, l.now)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.take(), nil
}

// Len returns the number of tracked keys.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Prune drops buckets that have been idle for a full window.
func (l *LocalLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
}

func (l *LocalLimiter) pruneLocked() {
	cutoff := l.now().Add(-l.config.WindowSize)
	for key, bucket := range l.buckets {
		bucket.mu.Lock()
		idle := bucket.lastRefill.Before(cutoff)
		bucket.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}

// Close drops all buckets.
func (l *LocalLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*TokenBucket)
	return nil
}
