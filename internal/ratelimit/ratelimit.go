package ratelimit

import (
	"sync"
	"time"
)

// Result reports the outcome of one counted attempt.
type Result struct {
	// Allowed is false once the window's limit is exceeded.
	Allowed bool
	// Remaining is the quota left in the current window, never negative.
	Remaining int64
	// ResetAt is the epoch-milliseconds instant the window rolls over.
	// Clients should back off until then on rejection.
	ResetAt int64
}

type window struct {
	count   int64
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by an identifier string. The clock
// is injected so tests advance virtual time instead of sleeping; elapsed
// windows are dropped by Sweep, which the owner triggers periodically.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func New() *Limiter {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     now,
	}
}

// Check counts one attempt for identifier against (limit, windowDur). The
// first attempt, or the first after the stored window elapses, opens a fresh
// window anchored at now+windowDur with count 1. Increment and compare are
// atomic under the limiter lock.
func (l *Limiter) Check(identifier string, limit int64, windowDur time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[identifier]
	if !ok || !w.resetAt.After(now) {
		w = &window{
			count:   1,
			resetAt: now.Add(windowDur),
		}
		l.windows[identifier] = w
	} else {
		w.count++
	}

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt.UnixMilli(),
	}
}

// Sweep drops entries whose window has elapsed, bounding memory.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, w := range l.windows {
		if !w.resetAt.After(now) {
			delete(l.windows, id)
		}
	}
}

// Len returns the number of tracked identifiers, for monitoring.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
