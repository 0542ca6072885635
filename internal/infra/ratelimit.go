package infra

import (
	"context"
	"sync"
	"time"
)

// Limiter grants capacity for outbound requests. Acquire blocks the caller
// until a slot frees or the context is canceled.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// SlidingWindowLimiter allows at most limit acquisitions per rolling
// window. Unlike a token bucket it tracks individual request timestamps,
// so a full burst blocks the next caller until the oldest request leaves
// the window — matching the ceiling the historical-data API enforces.
// It is safe for concurrent use and shared by all chunk fetchers.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now func() time.Time // injectable for tests
}

// NewSlidingWindowLimiter creates a limiter for limit requests per window.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire blocks until a request slot is available within the rolling
// window, then claims it. Returns the context error on cancellation.
func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()

		// Evict stamps that have left the window.
		cut := 0
		for cut < len(l.stamps) && now.Sub(l.stamps[cut]) >= l.window {
			cut++
		}
		l.stamps = l.stamps[cut:]

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		// Window full: wait until the oldest stamp rolls out.
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pending returns the number of requests currently counted in the window.
func (l *SlidingWindowLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, s := range l.stamps {
		if now.Sub(s) < l.window {
			n++
		}
	}
	return n
}
