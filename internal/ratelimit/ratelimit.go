// Package ratelimit implements a per-client sliding window limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits up to limit requests per client within a sliding window.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// New builds a limiter. A non-positive limit disables limiting.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records one request for the client and reports whether it is within
// the window's budget.
func (l *Limiter) Allow(client string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	recent := l.hits[client]
	for len(recent) > 0 && !recent[0].After(cutoff) {
		recent = recent[1:]
	}
	if len(recent) >= l.limit {
		l.hits[client] = recent
		return false
	}
	l.hits[client] = append(recent, now)
	return true
}

// RetryAfter returns how long the client should wait before the oldest hit
// in its window expires. Zero when the client is not limited.
func (l *Limiter) RetryAfter(client string) time.Duration {
	if l.limit <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[client]
	if len(recent) < l.limit {
		return 0
	}
	wait := recent[0].Add(l.window).Sub(l.now())
	if wait < 0 {
		return 0
	}
	return wait
}
