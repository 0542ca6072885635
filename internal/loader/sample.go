package loader

import (
	"math"
	"math/rand"
	"time"

	"backtest_go/internal/domain"
)

// SampleOptions parameterize the synthetic series generator.
type SampleOptions struct {
	StartPrice float64 // initial price, defaults to 0.5
	MeanRevert float64 // pull toward StartPrice per bar, defaults to 0.05
	Volatility float64 // per-bar noise scale, defaults to 0.01
	MinPrice   float64
	MaxPrice   float64
	Seed       int64
}

// GenerateSampleSeries produces a mean-reverting random walk at the given
// fidelity, useful for offline runs and demos when no network source is
// reachable. Same seed, same series.
func GenerateSampleSeries(instrument string, start, end time.Time, fidelityMinutes int, opts SampleOptions) domain.TimeSeries {
	if opts.StartPrice <= 0 {
		opts.StartPrice = 0.5
	}
	if opts.MeanRevert <= 0 {
		opts.MeanRevert = 0.05
	}
	if opts.Volatility <= 0 {
		opts.Volatility = 0.01
	}
	if opts.MaxPrice <= opts.MinPrice {
		opts.MinPrice, opts.MaxPrice = 0.01, 0.99
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	step := time.Duration(fidelityMinutes) * time.Minute

	var points []domain.PricePoint
	price := opts.StartPrice
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		drift := opts.MeanRevert * (opts.StartPrice - price)
		noise := opts.Volatility * rng.NormFloat64()
		price = clampPrice(price+drift+noise, opts.MinPrice, opts.MaxPrice)

		volume := 50 + 200*math.Abs(rng.NormFloat64())
		points = append(points, domain.PricePoint{
			Timestamp: ts,
			Price:     price,
			Volume:    volume,
		})
	}
	return domain.NewTimeSeries(instrument, points)
}

func clampPrice(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
