// Package ratelimit caps how many requests each key may make per window.
package ratelimit

import (
	"sync"
	"time"

	"grimm.is/blockd/internal/clock"
)

// Limiter manages fixed-window rate limiting for multiple keys. Every key
// gets the same limit per interval.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter allowing limit requests per interval per key.
// A nil clock means the real clock.
func NewLimiter(limit int, interval time.Duration, c clock.Clock) *Limiter {
	c = clock.Or(c)
	return &Limiter{
		limit:       limit,
		interval:    interval,
		clock:       c,
		buckets:     make(map[string]*bucket),
		lastCleanup: c.Now(),
	}
}

// Allow reports whether a request for key fits in its current window and
// takes a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN checks if n requests are allowed
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastCleanup) >= l.interval {
		l.cleanupLocked(now, l.interval)
		l.lastCleanup = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.buckets[key] = b
	}
	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Reset clears rate limit for a specific key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// CleanupExpired removes buckets whose window started more than maxAge ago.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupLocked(l.clock.Now(), maxAge)
}

func (l *Limiter) cleanupLocked(now time.Time, maxAge time.Duration) {
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
