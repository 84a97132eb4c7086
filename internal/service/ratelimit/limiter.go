// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// New allows perSec events per key with the given burst. A non-positive
// perSec disables limiting.
func New(perSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Inf
	if perSec > 0 {
		lim = rate.Limit(perSec)
	}
	return &Limiter{m: make(map[string]*rate.Limiter), limit: lim, burst: burst}
}

// Allow reports whether one event for key may happen now.
func (l *Limiter) Allow(key string) bool { return l.AllowAt(key, time.Now()) }

// AllowAt reports whether one event for key may happen at t.
func (l *Limiter) AllowAt(key string, t time.Time) bool {
	return l.get(key).AllowN(t, 1)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
