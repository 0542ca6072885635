package metrics

import (
	"math"
	"testing"
	"time"

	"backtest_go/internal/domain"
)

var metricsStart = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

func curveOf(values ...float64) []domain.EquitySample {
	out := make([]domain.EquitySample, len(values))
	for i, v := range values {
		out[i] = domain.EquitySample{
			Timestamp: metricsStart.Add(time.Duration(i) * time.Hour),
			Value:     v,
		}
	}
	return out
}

func TestTotalReturnAndDrawdown(t *testing.T) {
	curve := curveOf(100, 105, 110, 105, 100, 110, 120)

	if got := TotalReturn(curve); math.Abs(got-20) > 1e-9 {
		t.Errorf("total return = %v, want 20", got)
	}

	// Peak 110, trough 100: (100-110)/110 = -9.0909...%
	want := (100.0 - 110.0) / 110.0 * 100
	if got := MaxDrawdown(curve); math.Abs(got-want) > 1e-9 {
		t.Errorf("max drawdown = %v, want %v", got, want)
	}
}

func TestDrawdownNeverPositive(t *testing.T) {
	if got := MaxDrawdown(curveOf(100, 110, 120)); got != 0 {
		t.Errorf("monotone rising curve should have zero drawdown, got %v", got)
	}
}

func TestWinRateAndProfitFactor(t *testing.T) {
	pnls := []float64{10, -5, 15, -8}

	if got := WinRate(pnls); math.Abs(got-50) > 1e-9 {
		t.Errorf("win rate = %v, want 50", got)
	}

	pf := ProfitFactor(pnls)
	if !pf.Valid {
		t.Fatal("profit factor should be defined with losing trades present")
	}
	if want := 25.0 / 13.0; math.Abs(pf.Value-want) > 1e-9 {
		t.Errorf("profit factor = %v, want %v", pf.Value, want)
	}
}

func TestWinRateIgnoresFlatTrades(t *testing.T) {
	if got := WinRate([]float64{10, 0, 0, -10}); math.Abs(got-50) > 1e-9 {
		t.Errorf("flat trades must not dilute the rate, got %v", got)
	}
	if got := WinRate(nil); got != 0 {
		t.Errorf("no trades should yield zero, got %v", got)
	}
}

func TestProfitFactorUndefinedWithoutLosses(t *testing.T) {
	pf := ProfitFactor([]float64{10, 20})
	if pf.Valid {
		t.Errorf("no losing trades should leave the factor undefined, got %v", pf.Value)
	}
}

func TestRiskAdjustedDegenerateInputs(t *testing.T) {
	if r := RiskAdjusted(curveOf(100), time.Hour); r.Valid {
		t.Error("single sample cannot define the ratio")
	}
	// Constant curve has zero variance.
	if r := RiskAdjusted(curveOf(100, 100, 100, 100), time.Hour); r.Valid {
		t.Error("zero variance must leave the ratio undefined")
	}
}

func TestRiskAdjustedSign(t *testing.T) {
	up := RiskAdjusted(curveOf(100, 102, 103, 106, 107, 110), time.Hour)
	if !up.Valid || up.Value <= 0 {
		t.Errorf("rising curve should have a positive ratio, got %+v", up)
	}

	down := RiskAdjusted(curveOf(110, 107, 106, 103, 102, 100), time.Hour)
	if !down.Valid || down.Value >= 0 {
		t.Errorf("falling curve should have a negative ratio, got %+v", down)
	}
}

func TestCalculateFullSummary(t *testing.T) {
	curve := curveOf(100, 105, 110, 105, 100, 110, 120)
	trades := []domain.TradeRecord{
		{Size: 10, FillPrice: 0.5, Fee: 0.1, PnL: 0},
		{Size: 10, FillPrice: 0.6, Fee: 0.1, PnL: 10},
		{Size: 10, FillPrice: 0.6, Fee: 0.1, PnL: 0},
		{Size: 10, FillPrice: 0.5, Fee: 0.1, PnL: -5},
	}

	s := Calculate(curve, trades, time.Hour)

	if s.StartEquity != 100 || s.EndEquity != 120 {
		t.Errorf("equity bounds %v..%v", s.StartEquity, s.EndEquity)
	}
	if s.Trades != 4 {
		t.Errorf("trades = %d", s.Trades)
	}
	if s.WinningCount != 1 || s.LosingCount != 1 {
		t.Errorf("win/loss counts = %d/%d", s.WinningCount, s.LosingCount)
	}
	if math.Abs(s.TotalFees-0.4) > 1e-9 {
		t.Errorf("total fees = %v", s.TotalFees)
	}
	if s.LargestWin != 10 || s.LargestLoss != -5 {
		t.Errorf("largest win/loss = %v/%v", s.LargestWin, s.LargestLoss)
	}
	if !s.ProfitFactor.Valid || math.Abs(s.ProfitFactor.Value-2) > 1e-9 {
		t.Errorf("profit factor = %+v", s.ProfitFactor)
	}
}

func TestCalculateEmptyInputs(t *testing.T) {
	s := Calculate(nil, nil, time.Hour)
	if s.TotalReturn != 0 || s.MaxDrawdown != 0 || s.WinRate != 0 {
		t.Errorf("empty run should produce zero metrics: %+v", s)
	}
	if s.ProfitFactor.Valid || s.RiskAdjusted.Valid {
		t.Error("ratios must be undefined for an empty run")
	}
}
