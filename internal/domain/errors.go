package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkFetchError represents a failed historical-data request. Transient
// failures are retriable; exhausted retries escalate to a fatal load error.
type NetworkFetchError struct {
	Op         string // operation that failed, e.g. "fetch prices"
	Instrument string
	Start      time.Time
	End        time.Time
	Err        error
	Retriable  bool
}

func (e *NetworkFetchError) Error() string {
	return fmt.Sprintf("%s [%s %s..%s]: %v",
		e.Op, e.Instrument, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Err)
}

func (e *NetworkFetchError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkFetchError) Unwrap() error {
	return e.Err
}

// DataValidationError is fatal: the loaded series cannot back a replay.
// It aborts the run before any simulated step executes.
type DataValidationError struct {
	Instrument string
	Start      time.Time
	End        time.Time
	Coverage   float64
	Problems   []string
}

func (e *DataValidationError) Error() string {
	return fmt.Sprintf("data validation failed [%s %s..%s] coverage=%.1f%%: %v",
		e.Instrument, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"),
		e.Coverage*100, e.Problems)
}

func (e *DataValidationError) IsRetriable() bool {
	return false
}

// LookaheadError marks a critical simulation defect: data from after the
// simulated clock was observed. It is never tolerated or auto-corrected.
type LookaheadError struct {
	Instrument string
	Requested  time.Time // timestamp of the offending data point
	Now        time.Time // simulated clock at the time of the call
}

func (e *LookaheadError) Error() string {
	return fmt.Sprintf("lookahead violation [%s]: observed %s while simulated clock is %s",
		e.Instrument, e.Requested.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *LookaheadError) IsRetriable() bool {
	return false
}

// StrategyIterationError wraps a failure raised by strategy logic during a
// single replay step, pinned to the simulated timestamp of that step.
type StrategyIterationError struct {
	Timestamp time.Time
	Step      int
	Err       error
}

func (e *StrategyIterationError) Error() string {
	return fmt.Sprintf("strategy iteration %d failed at %s: %v",
		e.Step, e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *StrategyIterationError) Unwrap() error {
	return e.Err
}

// OrderTransitionError is returned on an attempt to move an order out of a
// terminal status.
type OrderTransitionError struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
}

func (e *OrderTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal status transition %s -> %s", e.OrderID, e.From, e.To)
}

var (
	// ErrNoPriceData is returned when a series holds no points at all.
	ErrNoPriceData = errors.New("no price data available")

	// ErrUnknownInstrument is returned for an instrument the client has no series for.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrOrderNotFound is returned by order lookups for an unknown id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrClockNotMonotonic is returned when the simulated clock would move backward.
	ErrClockNotMonotonic = errors.New("simulated clock cannot move backward")
)
