package infra

import (
	"context"
	"math/rand"
	"time"

	"backtest_go/internal/domain"
)

// RetryPolicy is an explicit backoff policy injected into network clients.
// It is a plain value: independently testable and inspectable, with no
// hidden wrapping of the call it governs.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the delay randomized, 0..1
}

// DefaultRetryPolicy mirrors the history API guidance: a few attempts with
// doubling delay and a little jitter to avoid thundering herds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Delay returns the backoff before the given attempt (1-based; attempt 1
// has no delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	d := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		d *= p.Multiplier
	}

	if p.Jitter > 0 {
		// Spread within [1-jitter, 1+jitter].
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// Do runs op up to MaxAttempts times, sleeping per Delay between attempts.
// Only retriable errors (see domain.IsRetriable) are retried; the last
// error is returned once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if wait := p.Delay(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = op()
		if err == nil {
			return nil
		}
		if !domain.IsRetriable(err) {
			return err
		}
	}
	return err
}
