// Package ratelimit enforces a minimum spacing between accepted requests
// from the same client address.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 1 * time.Hour
	entryTTL        = 24 * time.Hour
)

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter tracks one token bucket per IP, refilled once per window with a
// burst of one. A rejected request does not consume a token, so hammering
// the endpoint cannot hold the window open. Safe for concurrent use; the
// check-and-update is a single step under the lock.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration

	nowFunc func() time.Time

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// New creates a limiter with the given minimum interval between accepted
// requests. A window <= 0 disables limiting. Entries idle for more than a
// day are aged out in the background to bound memory.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		entries:     make(map[string]*entry),
		window:      window,
		nowFunc:     time.Now,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	close(l.stopCleanup)
	<-l.cleanupDone
}

// Allow reports whether a request from ip may proceed now.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	e, ok := l.entries[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.window), 1)}
		l.entries[ip] = e
	}
	e.lastAccess = now

	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked addresses.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

func (l *Limiter) cleanupLoop() {
	defer close(l.cleanupDone)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCleanup:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-entryTTL)
	for ip, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, ip)
		}
	}
}
