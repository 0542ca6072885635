package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra/storage"
)

// Fetcher retrieves historical price points over the network.
// *history.Client satisfies it.
type Fetcher interface {
	FetchRange(ctx context.Context, instrument string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error)
}

// Options tune how the loader splits and validates requests.
type Options struct {
	ChunkDays   int     // maximum span of a single network request
	MaxParallel int     // concurrent chunk fetches
	MinPrice    float64 // valid price domain for the asset
	MaxPrice    float64
}

// Loader assembles complete historical series for a replay window. It
// serves from the local cache when possible and otherwise fetches in
// bounded-concurrency chunks, merging and caching the result. A load is
// all-or-nothing: any failed chunk fails the whole load, so the engine
// never runs on partial data.
type Loader struct {
	cache   *storage.Cache
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
}

func New(cache *storage.Cache, fetcher Fetcher, opts Options) *Loader {
	if opts.ChunkDays <= 0 || opts.ChunkDays > 30 {
		opts.ChunkDays = 30
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &Loader{
		cache:   cache,
		fetcher: fetcher,
		opts:    opts,
		logger:  slog.Default().With("module", "loader"),
	}
}

// Load returns the full series for [start, end] at the given fidelity.
func (l *Loader) Load(ctx context.Context, instrument string, start, end time.Time, fidelityMinutes int) (domain.TimeSeries, error) {
	if !end.After(start) {
		return domain.TimeSeries{}, fmt.Errorf("invalid window: end %s not after start %s", end, start)
	}

	if l.cache != nil {
		cached, hit, err := l.cache.Get(instrument, start, end, fidelityMinutes)
		if err != nil {
			l.logger.Warn("cache lookup failed, falling back to network", slog.Any("error", err))
		} else if hit {
			l.logger.Info("serving from cache",
				slog.String("instrument", instrument),
				slog.Int("points", cached.Len()))
			return cached, nil
		}
	}

	chunks := splitWindow(start, end, l.opts.ChunkDays)
	l.logger.Info("fetching history",
		slog.String("instrument", instrument),
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Int("chunks", len(chunks)),
		slog.Int("fidelity_minutes", fidelityMinutes))

	results := make([][]domain.PricePoint, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, l.opts.MaxParallel)
	for i, c := range chunks {
		wg.Add(1)
		go func(i int, c window) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pts, err := l.fetcher.FetchRange(ctx, instrument, c.start, c.end, fidelityMinutes)
			if err != nil {
				errs[i] = fmt.Errorf("chunk [%s, %s]: %w", c.start.Format(time.RFC3339), c.end.Format(time.RFC3339), err)
				return
			}
			results[i] = pts
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return domain.TimeSeries{}, fmt.Errorf("loading %s: %w", instrument, err)
		}
	}

	var all []domain.PricePoint
	for _, pts := range results {
		all = append(all, pts...)
	}
	series := domain.NewTimeSeries(instrument, all)

	if l.cache != nil && !series.IsEmpty() {
		if err := l.cache.Put(instrument, start, end, fidelityMinutes, series); err != nil {
			l.logger.Warn("failed to cache fetched series", slog.Any("error", err))
		}
	}

	return series, nil
}

type window struct {
	start, end time.Time
}

// splitWindow cuts [start, end] into consecutive chunks of at most
// chunkDays each.
func splitWindow(start, end time.Time, chunkDays int) []window {
	span := time.Duration(chunkDays) * 24 * time.Hour
	var out []window
	for cur := start; cur.Before(end); {
		next := cur.Add(span)
		if next.After(end) {
			next = end
		}
		out = append(out, window{start: cur, end: next})
		cur = next
	}
	return out
}

// Report summarizes a validation pass over a loaded series.
type Report struct {
	Instrument   string   `json:"instrument"`
	ExpectedBars int      `json:"expectedBars"`
	ActualBars   int      `json:"actualBars"`
	Coverage     float64  `json:"coverage"`
	Warnings     []string `json:"warnings,omitempty"`
	Problems     []string `json:"problems,omitempty"`
}

// Valid reports whether the series may be replayed at all.
func (r Report) Valid() bool {
	return len(r.Problems) == 0
}

// Err converts a failed report into a DataValidationError, or nil.
func (r Report) Err(start, end time.Time) error {
	if r.Valid() {
		return nil
	}
	return &domain.DataValidationError{
		Instrument: r.Instrument,
		Start:      start,
		End:        end,
		Coverage:   r.Coverage,
		Problems:   r.Problems,
	}
}

// Validate checks a loaded series against the requested window. It is a
// pure function of its inputs: validating the same series twice yields
// the same report. Coverage below 50% and out-of-domain prices are hard
// problems; coverage between 50% and 90% is a warning.
func (l *Loader) Validate(series domain.TimeSeries, start, end time.Time, fidelityMinutes int) Report {
	rep := Report{Instrument: series.Instrument}

	step := time.Duration(fidelityMinutes) * time.Minute
	if step <= 0 {
		rep.Problems = append(rep.Problems, fmt.Sprintf("invalid fidelity %d minutes", fidelityMinutes))
		return rep
	}
	rep.ExpectedBars = int(end.Sub(start)/step) + 1
	rep.ActualBars = series.Len()

	if rep.ExpectedBars > 0 {
		rep.Coverage = float64(rep.ActualBars) / float64(rep.ExpectedBars)
	}

	switch {
	case rep.Coverage < 0.5:
		rep.Problems = append(rep.Problems,
			fmt.Sprintf("coverage %.1f%% below minimum 50%% (%d of %d bars)",
				rep.Coverage*100, rep.ActualBars, rep.ExpectedBars))
	case rep.Coverage < 0.9:
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("coverage %.1f%% below 90%% (%d of %d bars)",
				rep.Coverage*100, rep.ActualBars, rep.ExpectedBars))
	}

	var outOfDomain int
	for _, pt := range series.Points() {
		if pt.Price < l.opts.MinPrice || pt.Price > l.opts.MaxPrice {
			outOfDomain++
		}
	}
	if outOfDomain > 0 {
		rep.Problems = append(rep.Problems,
			fmt.Sprintf("%d prices outside valid domain [%v, %v]", outOfDomain, l.opts.MinPrice, l.opts.MaxPrice))
	}

	if gaps := largestGaps(series, step); len(gaps) > 0 {
		rep.Warnings = append(rep.Warnings, gaps...)
	}

	sort.Strings(rep.Warnings)
	return rep
}

// largestGaps reports stretches of missing bars longer than 3 steps.
func largestGaps(series domain.TimeSeries, step time.Duration) []string {
	pts := series.Points()
	var out []string
	for i := 1; i < len(pts); i++ {
		gap := pts[i].Timestamp.Sub(pts[i-1].Timestamp)
		if gap > 3*step {
			out = append(out, fmt.Sprintf("gap of %s starting %s",
				gap, pts[i-1].Timestamp.Format(time.RFC3339)))
		}
	}
	if len(out) > 5 {
		out = append(out[:5], fmt.Sprintf("and %d more gaps", len(out)-5))
	}
	return out
}

// Describe renders a report as a short human-readable block for logs.
func (r Report) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation %s: %d/%d bars (%.1f%% coverage)",
		r.Instrument, r.ActualBars, r.ExpectedBars, r.Coverage*100)
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  warn: %s", w)
	}
	for _, p := range r.Problems {
		fmt.Fprintf(&b, "\n  problem: %s", p)
	}
	return b.String()
}
