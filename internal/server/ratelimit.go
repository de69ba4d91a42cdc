package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window per-IP request counter.
type rateLimiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	records map[string]*windowRecord
}

type windowRecord struct {
	count   int
	resetAt time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{
		window:  window,
		max:     max,
		records: make(map[string]*windowRecord),
	}
}

// allow reports whether another request from ip fits in the current window.
func (l *rateLimiter) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[ip]
	if !ok || now.After(rec.resetAt) {
		l.records[ip] = &windowRecord{count: 1, resetAt: now.Add(l.window)}
		l.sweep(now)
		return true
	}

	if rec.count >= l.max {
		return false
	}
	rec.count++
	return true
}

// sweep drops expired windows. Called with the lock held, only on the cheap
// path where a new window was just created.
func (l *rateLimiter) sweep(now time.Time) {
	for ip, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, ip)
		}
	}
}
