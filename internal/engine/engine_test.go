package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra"
	"backtest_go/internal/loader"
)

var runStart = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

// flatFetcher serves a fully covered flat-price window.
type flatFetcher struct {
	price float64
}

func (f flatFetcher) FetchRange(_ context.Context, _ string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	step := time.Duration(fidelityMinutes) * time.Minute
	var pts []domain.PricePoint
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		pts = append(pts, domain.PricePoint{Timestamp: ts, Price: f.price})
	}
	return pts, nil
}

// sparseFetcher serves too few bars to pass validation.
type sparseFetcher struct{}

func (sparseFetcher) FetchRange(_ context.Context, _ string, start, _ time.Time, _ int) ([]domain.PricePoint, error) {
	return []domain.PricePoint{{Timestamp: start, Price: 0.5}}, nil
}

type scriptedStrategy struct {
	calls  int
	failAt int // 1-based call index to fail at, 0 for never
	err    error
}

func (s *scriptedStrategy) RunIteration(context.Context, domain.ExchangeClient) error {
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return s.err
	}
	return nil
}

func testConfig(policy string) Config {
	return Config{
		Instrument:      "mkt",
		Start:           runStart,
		End:             runStart.Add(23 * time.Hour),
		FidelityMinutes: 60,
		Step:            time.Hour,
		InitialCapital:  1000,
		MinPrice:        0.001,
		MaxPrice:        0.999,
		OnStrategyError: policy,
	}
}

func newEngine(t *testing.T, cfg Config, f loader.Fetcher, strat *scriptedStrategy) *Engine {
	t.Helper()
	ldr := loader.New(nil, f, loader.Options{MinPrice: cfg.MinPrice, MaxPrice: cfg.MaxPrice})
	e, err := New(cfg, ldr, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunCompletes(t *testing.T) {
	strat := &scriptedStrategy{}
	e := newEngine(t, testConfig(infra.OnStrategyErrorHalt), flatFetcher{price: 0.5}, strat)

	if e.State() != StateIdle {
		t.Fatalf("fresh engine state = %s", e.State())
	}

	res := e.Run(context.Background())
	if res.FinalState != StateCompleted {
		t.Fatalf("final state = %s, err = %v", res.FinalState, res.Err)
	}
	if e.State() != StateCompleted {
		t.Errorf("engine state = %s", e.State())
	}

	// 24 hourly steps across a 23-hour window.
	if len(res.Curve) != 24 {
		t.Errorf("curve length = %d, want 24", len(res.Curve))
	}
	if strat.calls != 24 {
		t.Errorf("strategy ran %d times, want 24", strat.calls)
	}

	// No trades: equity stays at capital throughout.
	for i, s := range res.Curve {
		if s.Value != 1000 {
			t.Fatalf("sample %d equity %v, want 1000", i, s.Value)
		}
	}
	if res.Metrics.TotalReturn != 0 {
		t.Errorf("flat run total return = %v", res.Metrics.TotalReturn)
	}
}

func TestRunFailsOnValidationBeforeAnyStep(t *testing.T) {
	strat := &scriptedStrategy{}
	e := newEngine(t, testConfig(infra.OnStrategyErrorHalt), sparseFetcher{}, strat)

	res := e.Run(context.Background())
	if res.FinalState != StateFailed {
		t.Fatalf("final state = %s", res.FinalState)
	}

	var verr *domain.DataValidationError
	if !errors.As(res.Err, &verr) {
		t.Fatalf("expected DataValidationError, got %v", res.Err)
	}
	if len(res.Curve) != 0 {
		t.Errorf("no step may run after failed validation, curve has %d samples", len(res.Curve))
	}
	if strat.calls != 0 {
		t.Errorf("strategy must not run, calls = %d", strat.calls)
	}
	if res.Report.Valid() {
		t.Error("result should carry the failed validation report")
	}
}

func TestStrategyErrorHaltPolicy(t *testing.T) {
	strat := &scriptedStrategy{failAt: 5, err: errors.New("divide by zero")}
	e := newEngine(t, testConfig(infra.OnStrategyErrorHalt), flatFetcher{price: 0.5}, strat)

	res := e.Run(context.Background())
	if res.FinalState != StateFailed {
		t.Fatalf("halt policy should fail the run, got %s", res.FinalState)
	}

	var ierr *domain.StrategyIterationError
	if !errors.As(res.Err, &ierr) {
		t.Fatalf("expected StrategyIterationError, got %v", res.Err)
	}

	// The samples recorded before the failure survive.
	if len(res.Curve) != 5 {
		t.Errorf("curve length = %d, want 5", len(res.Curve))
	}
	if strat.calls != 5 {
		t.Errorf("strategy calls = %d, want 5", strat.calls)
	}
}

func TestStrategyErrorSkipPolicy(t *testing.T) {
	strat := &scriptedStrategy{failAt: 5, err: errors.New("divide by zero")}
	e := newEngine(t, testConfig(infra.OnStrategyErrorSkip), flatFetcher{price: 0.5}, strat)

	res := e.Run(context.Background())
	if res.FinalState != StateCompleted {
		t.Fatalf("skip policy should complete the run, got %s (err %v)", res.FinalState, res.Err)
	}
	if strat.calls != 24 {
		t.Errorf("strategy calls = %d, want 24", strat.calls)
	}
	// Calls 5..24 all failed and were skipped.
	if len(res.IterationErrors) != 20 {
		t.Errorf("recorded %d iteration errors, want 20", len(res.IterationErrors))
	}
}

type panickyStrategy struct{}

func (panickyStrategy) RunIteration(context.Context, domain.ExchangeClient) error {
	panic("index out of range")
}

func TestStrategyPanicFailsRunWithoutCrashing(t *testing.T) {
	ldr := loader.New(nil, flatFetcher{price: 0.5}, loader.Options{MinPrice: 0.001, MaxPrice: 0.999})
	e, err := New(testConfig(infra.OnStrategyErrorHalt), ldr, panickyStrategy{})
	if err != nil {
		t.Fatal(err)
	}

	res := e.Run(context.Background())
	if res.FinalState != StateFailed {
		t.Fatalf("final state = %s", res.FinalState)
	}
	if res.Err == nil {
		t.Fatal("panic must surface as a run failure")
	}
	if len(res.Curve) != 1 {
		t.Errorf("pre-panic samples should survive, got %d", len(res.Curve))
	}
}

func TestConfigRejectsMissingErrorPolicy(t *testing.T) {
	cfg := testConfig("")
	ldr := loader.New(nil, flatFetcher{price: 0.5}, loader.Options{})
	if _, err := New(cfg, ldr, &scriptedStrategy{}); err == nil {
		t.Fatal("missing error policy must fail construction")
	}

	cfg = testConfig("retry")
	if _, err := New(cfg, ldr, &scriptedStrategy{}); err == nil {
		t.Fatal("unknown error policy must fail construction")
	}
}
