// Package ratelimit provides a fixed-window per-key counter used to cap
// proactive notifications per user.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most Cap calls per key within each fixed window.
type Limiter struct {
	cap    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[int64]*windowState
}

type windowState struct {
	start time.Time
	count int
}

func New(cap int, window time.Duration) *Limiter {
	if cap <= 0 {
		cap = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	return &Limiter{
		cap:     cap,
		window:  window,
		now:     time.Now,
		windows: make(map[int64]*windowState),
	}
}

// Allow reports whether another call for the key fits in the current window
// and counts it when it does.
func (l *Limiter) Allow(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &windowState{start: now, count: 1}
		l.compact(now)
		return true
	}

	if w.count >= l.cap {
		return false
	}

	w.count++
	return true
}

// compact drops expired windows so the map stays bounded by the set of keys
// active within the last window.
func (l *Limiter) compact(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}
