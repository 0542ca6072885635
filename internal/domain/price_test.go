package domain

import (
	"testing"
	"time"
)

var seriesBase = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

func hourlyPoints(prices ...float64) []PricePoint {
	pts := make([]PricePoint, len(prices))
	for i, p := range prices {
		pts[i] = PricePoint{Timestamp: seriesBase.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return pts
}

func TestNewTimeSeriesSortsAndDedupes(t *testing.T) {
	pts := []PricePoint{
		{Timestamp: seriesBase.Add(2 * time.Hour), Price: 0.52},
		{Timestamp: seriesBase, Price: 0.50},
		{Timestamp: seriesBase.Add(time.Hour), Price: 0.51},
		// Duplicate timestamp: the later entry wins.
		{Timestamp: seriesBase.Add(time.Hour), Price: 0.99},
	}

	s := NewTimeSeries("mkt", pts)
	if s.Len() != 3 {
		t.Fatalf("expected 3 points after dedupe, got %d", s.Len())
	}

	got := s.Points()
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("points not strictly ordered at %d", i)
		}
	}
	if got[1].Price != 0.99 {
		t.Errorf("dedupe should keep last value, got %v", got[1].Price)
	}
}

func TestLatestAt(t *testing.T) {
	s := NewTimeSeries("mkt", hourlyPoints(0.50, 0.51, 0.52))

	// Exactly on a bar.
	pt, ok := s.LatestAt(seriesBase.Add(time.Hour))
	if !ok || pt.Price != 0.51 {
		t.Fatalf("expected 0.51 at t+1h, got %v ok=%v", pt.Price, ok)
	}

	// Between bars returns the earlier one.
	pt, ok = s.LatestAt(seriesBase.Add(90 * time.Minute))
	if !ok || pt.Price != 0.51 {
		t.Fatalf("expected 0.51 at t+90m, got %v ok=%v", pt.Price, ok)
	}

	// Before the first bar nothing is visible.
	if _, ok := s.LatestAt(seriesBase.Add(-time.Minute)); ok {
		t.Error("expected no visible point before series start")
	}

	// After the last bar the last point holds.
	pt, ok = s.LatestAt(seriesBase.Add(100 * time.Hour))
	if !ok || pt.Price != 0.52 {
		t.Fatalf("expected last price 0.52, got %v ok=%v", pt.Price, ok)
	}
}

func TestBetweenBoundsInclusive(t *testing.T) {
	s := NewTimeSeries("mkt", hourlyPoints(0.50, 0.51, 0.52, 0.53))

	got := s.Between(seriesBase.Add(time.Hour), seriesBase.Add(2*time.Hour))
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Price != 0.51 || got[1].Price != 0.52 {
		t.Errorf("wrong slice contents: %v", got)
	}
}

func TestMergePrefersNewerSeries(t *testing.T) {
	a := NewTimeSeries("mkt", hourlyPoints(0.50, 0.51))
	b := NewTimeSeries("mkt", []PricePoint{
		{Timestamp: seriesBase.Add(time.Hour), Price: 0.60},
		{Timestamp: seriesBase.Add(2 * time.Hour), Price: 0.61},
	})

	merged := a.Merge(b)
	if merged.Len() != 3 {
		t.Fatalf("expected 3 merged points, got %d", merged.Len())
	}
	pt, _ := merged.LatestAt(seriesBase.Add(time.Hour))
	if pt.Price != 0.60 {
		t.Errorf("overlapping point should come from the merged-in series, got %v", pt.Price)
	}
}

func TestOrderTransitionMonotonic(t *testing.T) {
	o := &SimulatedOrder{Status: OrderStatusCreated}
	if err := o.Transition(OrderStatusFilled); err != nil {
		t.Fatalf("created -> filled should succeed: %v", err)
	}
	if err := o.Transition(OrderStatusCreated); err == nil {
		t.Error("terminal order must not transition back")
	}
}
