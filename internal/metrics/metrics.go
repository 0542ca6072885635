package metrics

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"backtest_go/internal/domain"
)

// Ratio is a metric that may be undefined for the given inputs, for
// example a profit factor with no losing trades. Undefined values carry
// Valid=false instead of an infinity or a placeholder number.
type Ratio struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Summary holds the performance metrics of a completed replay.
type Summary struct {
	TotalReturn      float64 `json:"totalReturn"`      // percent
	AnnualizedReturn Ratio   `json:"annualizedReturn"` // percent, needs a measurable span
	MaxDrawdown      float64 `json:"maxDrawdown"`      // percent, zero or negative
	WinRate          float64 `json:"winRate"`          // percent of closed trades with pnl != 0
	ProfitFactor     Ratio   `json:"profitFactor"`
	RiskAdjusted     Ratio   `json:"riskAdjusted"` // mean step return over stddev, annualized

	Trades       int     `json:"trades"`
	WinningCount int     `json:"winningCount"`
	LosingCount  int     `json:"losingCount"`
	AverageWin   Ratio   `json:"averageWin"`
	AverageLoss  Ratio   `json:"averageLoss"`
	LargestWin   float64 `json:"largestWin"`
	LargestLoss  float64 `json:"largestLoss"`
	TotalVolume  float64 `json:"totalVolume"`
	TotalFees    float64 `json:"totalFees"`

	StartEquity float64 `json:"startEquity"`
	EndEquity   float64 `json:"endEquity"`
}

// riskScaling annualizes per-step return ratios assuming hourly bars.
// Kept as a named constant so the assumption is visible.
const hoursPerYear = 24 * 365

// Calculate derives a full summary from the equity curve and trade log.
// Degenerate inputs (empty curve, no trades, flat equity) produce zero or
// invalid metrics, never a panic.
func Calculate(curve []domain.EquitySample, trades []domain.TradeRecord, stepSize time.Duration) Summary {
	var s Summary

	if len(curve) > 0 {
		s.StartEquity = curve[0].Value
		s.EndEquity = curve[len(curve)-1].Value
		s.TotalReturn = TotalReturn(curve)
		s.MaxDrawdown = MaxDrawdown(curve)
		s.AnnualizedReturn = annualizedReturn(curve)
		s.RiskAdjusted = RiskAdjusted(curve, stepSize)
	}

	pnls := closedPnls(trades)
	s.WinRate = WinRate(pnls)
	s.ProfitFactor = ProfitFactor(pnls)

	for _, t := range trades {
		s.TotalVolume += t.Notional()
		s.TotalFees += t.Fee
	}
	s.Trades = len(trades)

	var winSum, lossSum float64
	for _, pnl := range pnls {
		if pnl > 0 {
			s.WinningCount++
			winSum += pnl
			if pnl > s.LargestWin {
				s.LargestWin = pnl
			}
		} else if pnl < 0 {
			s.LosingCount++
			lossSum += pnl
			if pnl < s.LargestLoss {
				s.LargestLoss = pnl
			}
		}
	}
	if s.WinningCount > 0 {
		s.AverageWin = Ratio{Value: winSum / float64(s.WinningCount), Valid: true}
	}
	if s.LosingCount > 0 {
		s.AverageLoss = Ratio{Value: lossSum / float64(s.LosingCount), Valid: true}
	}

	return s
}

// TotalReturn is the percent change from the first to the last equity
// sample.
func TotalReturn(curve []domain.EquitySample) float64 {
	if len(curve) < 2 || curve[0].Value == 0 {
		return 0
	}
	return (curve[len(curve)-1].Value - curve[0].Value) / curve[0].Value * 100
}

// MaxDrawdown is the largest percent decline from a running equity peak,
// reported as zero or a negative percentage.
func MaxDrawdown(curve []domain.EquitySample) float64 {
	var maxDD float64
	var peak float64
	for _, sample := range curve {
		if sample.Value > peak {
			peak = sample.Value
		}
		if peak == 0 {
			continue
		}
		dd := (sample.Value - peak) / peak * 100
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// WinRate is the percent of closed trades with positive pnl among trades
// with nonzero pnl. Flat trades do not count against the rate.
func WinRate(pnls []float64) float64 {
	var wins, decided int
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
		}
		if pnl != 0 {
			decided++
		}
	}
	if decided == 0 {
		return 0
	}
	return float64(wins) / float64(decided) * 100
}

// ProfitFactor is gross profit over gross loss. It is undefined when
// there are no losing trades.
func ProfitFactor(pnls []float64) Ratio {
	var grossProfit, grossLoss float64
	for _, pnl := range pnls {
		if pnl > 0 {
			grossProfit += pnl
		} else if pnl < 0 {
			grossLoss += -pnl
		}
	}
	if grossLoss == 0 {
		return Ratio{}
	}
	return Ratio{Value: grossProfit / grossLoss, Valid: true}
}

// RiskAdjusted is the mean per-step return over its sample standard
// deviation, scaled by the square root of steps per year. Undefined for
// fewer than three samples or zero variance.
func RiskAdjusted(curve []domain.EquitySample, stepSize time.Duration) Ratio {
	returns := stepReturns(curve)
	if len(returns) < 2 {
		return Ratio{}
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return Ratio{}
	}
	stddev, err := stats.StandardDeviationSample(returns)
	if err != nil || stddev == 0 {
		return Ratio{}
	}

	stepsPerYear := float64(hoursPerYear)
	if stepSize > 0 {
		stepsPerYear = float64(365*24) * float64(time.Hour) / float64(stepSize)
	}
	return Ratio{Value: mean / stddev * math.Sqrt(stepsPerYear), Valid: true}
}

func annualizedReturn(curve []domain.EquitySample) Ratio {
	if len(curve) < 2 || curve[0].Value <= 0 {
		return Ratio{}
	}
	span := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	if span <= 0 {
		return Ratio{}
	}
	years := span.Hours() / float64(hoursPerYear)
	growth := curve[len(curve)-1].Value / curve[0].Value
	if growth <= 0 {
		return Ratio{}
	}
	return Ratio{Value: (math.Pow(growth, 1/years) - 1) * 100, Valid: true}
}

func stepReturns(curve []domain.EquitySample) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			continue
		}
		out = append(out, (curve[i].Value-prev)/prev)
	}
	return out
}

// closedPnls extracts realized pnl from trades that closed exposure.
// Opening fills carry zero pnl and are excluded.
func closedPnls(trades []domain.TradeRecord) []float64 {
	var out []float64
	for _, t := range trades {
		if t.PnL != 0 {
			out = append(out, t.PnL)
		}
	}
	return out
}
