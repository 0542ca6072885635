package domain

import (
	"sort"
	"time"
)

// PricePoint is a single bar of recorded market data.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
}

// TimeSeries is a sorted, deduplicated sequence of PricePoints.
// It is immutable once built; all accessors return copies or sub-slices.
type TimeSeries struct {
	Instrument string
	points     []PricePoint
}

// NewTimeSeries builds a series from raw points: sorts by timestamp and
// drops duplicate timestamps, keeping the last value seen for each.
func NewTimeSeries(instrument string, points []PricePoint) TimeSeries {
	cp := make([]PricePoint, len(points))
	copy(cp, points)

	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Timestamp.Before(cp[j].Timestamp)
	})

	// Dedupe in place: later entries win, matching the recorder behavior.
	deduped := cp[:0]
	for _, p := range cp {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(p.Timestamp) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	return TimeSeries{Instrument: instrument, points: deduped}
}

// Len returns the number of points in the series.
func (s TimeSeries) Len() int {
	return len(s.points)
}

// IsEmpty reports whether the series has no points.
func (s TimeSeries) IsEmpty() bool {
	return len(s.points) == 0
}

// First returns the earliest point. Second return is false on an empty series.
func (s TimeSeries) First() (PricePoint, bool) {
	if len(s.points) == 0 {
		return PricePoint{}, false
	}
	return s.points[0], true
}

// Last returns the latest point. Second return is false on an empty series.
func (s TimeSeries) Last() (PricePoint, bool) {
	if len(s.points) == 0 {
		return PricePoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// LatestAt returns the most recent point with timestamp <= t.
// Second return is false when no point is visible at t yet.
func (s TimeSeries) LatestAt(t time.Time) (PricePoint, bool) {
	idx := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Timestamp.After(t)
	})
	if idx == 0 {
		return PricePoint{}, false
	}
	return s.points[idx-1], true
}

// Between returns the points with from <= timestamp <= to, in order.
func (s TimeSeries) Between(from, to time.Time) []PricePoint {
	lo := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Timestamp.After(to)
	})
	out := make([]PricePoint, hi-lo)
	copy(out, s.points[lo:hi])
	return out
}

// Points returns a copy of the full series.
func (s TimeSeries) Points() []PricePoint {
	out := make([]PricePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Merge combines two series for the same instrument into a new sorted,
// deduplicated series. Neither input is modified.
func (s TimeSeries) Merge(other TimeSeries) TimeSeries {
	merged := make([]PricePoint, 0, len(s.points)+len(other.points))
	merged = append(merged, s.points...)
	merged = append(merged, other.points...)
	return NewTimeSeries(s.Instrument, merged)
}
