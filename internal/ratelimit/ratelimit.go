// Package ratelimit provides the sliding-window admission gate shared by
// every component that calls an external oracle.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most maxCalls starts within any rolling window.
// Admission is checked lazily in Acquire; there is no background timer.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time

	now func() time.Time
}

// New creates a limiter allowing maxCalls per window.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls <= 0 || window <= 0 {
		panic("ratelimit: maxCalls and window must be positive")
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// Acquire blocks until a call may start, then records it.
// It returns ctx.Err() if the context ends while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait := l.tryAcquire()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire records a call and returns 0, or returns how long to wait
// until the oldest live call leaves the window.
func (l *Limiter) tryAcquire() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		return 0
	}

	wait := l.calls[0].Add(l.window).Sub(now)
	if wait <= 0 {
		// Oldest entry expires exactly now; the next loop prunes it.
		wait = time.Millisecond
	}
	return wait
}

// prune drops timestamps older than the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// Live returns the number of calls still inside the window.
func (l *Limiter) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls)
}
