// Package ratelimit throttles syncs per source with an hourly token bucket.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter keeps one token bucket per key. Buckets hold up to perHour tokens
// and refill continuously at perHour tokens per hour. State is in memory and
// forgiven on restart.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	perHour  float64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether key may run now and consumes a token if so.
// A perHour of 0 or less means unlimited.
func (l *Limiter) Allow(key string, perHour int) bool {
	if perHour <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucketFor(key, float64(perHour), now)
	b.refill(now)

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the whole tokens currently available for key.
func (l *Limiter) Remaining(key string, perHour int) int {
	if perHour <= 0 {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b := l.bucketFor(key, float64(perHour), now)
	b.refill(now)
	return int(b.tokens)
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *Limiter) bucketFor(key string, perHour float64, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok || b.perHour != perHour {
		b = &bucket{
			tokens:   perHour,
			lastFill: now,
			perHour:  perHour,
		}
		l.buckets[key] = b
	}
	return b
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Hours()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.perHour
	if b.tokens > b.perHour {
		b.tokens = b.perHour
	}
	b.lastFill = now
}
