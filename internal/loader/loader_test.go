package loader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra/storage"
)

var loadStart = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

// fakeFetcher serves bars generated on the fly and records the chunks it
// was asked for.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []time.Time
	failOn int // 1-based call index to fail, 0 for never
	err    error
}

func (f *fakeFetcher) FetchRange(_ context.Context, instrument string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	f.mu.Lock()
	f.calls = append(f.calls, start)
	n := len(f.calls)
	f.mu.Unlock()

	if f.failOn > 0 && n == f.failOn {
		return nil, f.err
	}

	step := time.Duration(fidelityMinutes) * time.Minute
	var pts []domain.PricePoint
	for ts := start; ts.Before(end); ts = ts.Add(step) {
		pts = append(pts, domain.PricePoint{Timestamp: ts, Price: 0.5})
	}
	return pts, nil
}

func newTestLoader(t *testing.T, f Fetcher) *Loader {
	t.Helper()
	cache, err := storage.NewCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	return New(cache, f, Options{ChunkDays: 7, MaxParallel: 3, MinPrice: 0.001, MaxPrice: 0.999})
}

func TestLoadSplitsIntoChunks(t *testing.T) {
	f := &fakeFetcher{}
	l := newTestLoader(t, f)

	end := loadStart.Add(20 * 24 * time.Hour)
	series, err := l.Load(context.Background(), "mkt", loadStart, end, 60)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if series.IsEmpty() {
		t.Fatal("expected a populated series")
	}

	// 20 days at 7-day chunks is 3 requests.
	if len(f.calls) != 3 {
		t.Errorf("expected 3 chunk fetches, got %d", len(f.calls))
	}
}

func TestLoadServesSecondCallFromCache(t *testing.T) {
	f := &fakeFetcher{}
	l := newTestLoader(t, f)

	end := loadStart.Add(3 * 24 * time.Hour)
	first, err := l.Load(context.Background(), "mkt", loadStart, end, 60)
	if err != nil {
		t.Fatal(err)
	}
	fetchesAfterFirst := len(f.calls)

	second, err := l.Load(context.Background(), "mkt", loadStart, end, 60)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.calls) != fetchesAfterFirst {
		t.Errorf("second load hit the network: %d fetches", len(f.calls)-fetchesAfterFirst)
	}
	if second.Len() != first.Len() {
		t.Errorf("cached series differs: %d vs %d points", second.Len(), first.Len())
	}
}

func TestLoadFailsWholeOnAnyChunkError(t *testing.T) {
	f := &fakeFetcher{failOn: 2, err: errors.New("connection reset")}
	l := newTestLoader(t, f)

	end := loadStart.Add(20 * 24 * time.Hour)
	_, err := l.Load(context.Background(), "mkt", loadStart, end, 60)
	if err == nil {
		t.Fatal("a failed chunk must fail the whole load")
	}
	if !errors.Is(err, f.err) {
		t.Errorf("error should wrap the chunk failure, got %v", err)
	}
}

func TestValidateCoverageThresholds(t *testing.T) {
	l := New(nil, &fakeFetcher{}, Options{MinPrice: 0.001, MaxPrice: 0.999})
	end := loadStart.Add(99 * time.Hour) // 100 expected hourly bars

	mkSeries := func(n int) domain.TimeSeries {
		pts := make([]domain.PricePoint, n)
		for i := 0; i < n; i++ {
			pts[i] = domain.PricePoint{Timestamp: loadStart.Add(time.Duration(i) * time.Hour), Price: 0.5}
		}
		return domain.NewTimeSeries("mkt", pts)
	}

	full := l.Validate(mkSeries(100), loadStart, end, 60)
	if !full.Valid() || len(full.Warnings) != 0 {
		t.Errorf("full coverage should be clean: %+v", full)
	}

	sparse := l.Validate(mkSeries(70), loadStart, end, 60)
	if !sparse.Valid() {
		t.Errorf("70%% coverage should pass with warnings: %+v", sparse)
	}
	if len(sparse.Warnings) == 0 {
		t.Error("70% coverage should warn")
	}

	broken := l.Validate(mkSeries(40), loadStart, end, 60)
	if broken.Valid() {
		t.Error("40% coverage must be a hard failure")
	}
	if err := broken.Err(loadStart, end); err == nil {
		t.Error("failed report must convert to an error")
	} else {
		var verr *domain.DataValidationError
		if !errors.As(err, &verr) {
			t.Errorf("expected DataValidationError, got %T", err)
		}
	}
}

func TestValidateRejectsOutOfDomainPrices(t *testing.T) {
	l := New(nil, &fakeFetcher{}, Options{MinPrice: 0.001, MaxPrice: 0.999})
	pts := []domain.PricePoint{
		{Timestamp: loadStart, Price: 0.5},
		{Timestamp: loadStart.Add(time.Hour), Price: 1.7},
	}
	series := domain.NewTimeSeries("mkt", pts)

	rep := l.Validate(series, loadStart, loadStart.Add(time.Hour), 60)
	if rep.Valid() {
		t.Fatal("price outside the valid domain must fail validation")
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	l := New(nil, &fakeFetcher{}, Options{MinPrice: 0.001, MaxPrice: 0.999})
	pts := make([]domain.PricePoint, 60)
	for i := range pts {
		pts[i] = domain.PricePoint{Timestamp: loadStart.Add(time.Duration(i) * time.Hour), Price: 0.5}
	}
	series := domain.NewTimeSeries("mkt", pts)
	end := loadStart.Add(99 * time.Hour)

	a := l.Validate(series, loadStart, end, 60)
	b := l.Validate(series, loadStart, end, 60)
	if a.Coverage != b.Coverage || len(a.Warnings) != len(b.Warnings) || len(a.Problems) != len(b.Problems) {
		t.Errorf("validation is not deterministic: %+v vs %+v", a, b)
	}
}

func TestGenerateSampleSeriesDeterministic(t *testing.T) {
	end := loadStart.Add(48 * time.Hour)
	a := GenerateSampleSeries("mkt", loadStart, end, 60, SampleOptions{Seed: 7})
	b := GenerateSampleSeries("mkt", loadStart, end, 60, SampleOptions{Seed: 7})

	if a.Len() != b.Len() || a.Len() != 49 {
		t.Fatalf("expected 49 bars twice, got %d and %d", a.Len(), b.Len())
	}
	ap, bp := a.Points(), b.Points()
	for i := range ap {
		if ap[i].Price != bp[i].Price {
			t.Fatalf("same seed diverged at bar %d", i)
		}
	}
	for _, pt := range ap {
		if pt.Price < 0.01 || pt.Price > 0.99 {
			t.Errorf("bar price %v escaped default domain", pt.Price)
		}
	}
}
