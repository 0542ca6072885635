package sim

import (
	"time"

	"backtest_go/internal/domain"
)

// Clock holds the current simulated time for one replay. Every component
// in a run derives "now" exclusively from its clock; nothing reads the
// wall clock during replay. The clock mutates only under engine control.
type Clock struct {
	current time.Time
	start   time.Time
	end     time.Time
	started bool
}

// NewClock creates a clock positioned at start for the window [start, end].
func NewClock(start, end time.Time) *Clock {
	return &Clock{current: start, start: start, end: end}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	return c.current
}

// Set moves the clock to t. Once replay has started the clock is
// monotonic: moving backward returns ErrClockNotMonotonic. Use Reset for
// deterministic test setup instead.
func (c *Clock) Set(t time.Time) error {
	if c.started && t.Before(c.current) {
		return domain.ErrClockNotMonotonic
	}
	c.current = t
	c.started = true
	return nil
}

// Advance moves the clock forward by delta and reports whether more steps
// remain inside the replay window.
func (c *Clock) Advance(delta time.Duration) bool {
	c.current = c.current.Add(delta)
	c.started = true
	return !c.Expired()
}

// Expired reports whether the clock has passed the end of the window.
func (c *Clock) Expired() bool {
	return c.current.After(c.end)
}

// Reset rewinds the clock to t and clears the started flag. This is a
// distinct operation from Set, intended for deterministic test setup; the
// engine never calls it mid-replay.
func (c *Clock) Reset(t time.Time) {
	c.current = t
	c.started = false
}
