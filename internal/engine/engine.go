package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra"
	"backtest_go/internal/loader"
	"backtest_go/internal/metrics"
	"backtest_go/internal/sim"
	"backtest_go/internal/strategy"
)

// State is the lifecycle phase of a replay run.
type State string

const (
	StateIdle      State = "IDLE"
	StateLoading   State = "LOADING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Config drives a single replay run.
type Config struct {
	Instrument      string
	Start           time.Time
	End             time.Time
	FidelityMinutes int
	Step            time.Duration

	InitialCapital float64
	SlippagePct    float64
	FeePct         float64
	MinPrice       float64
	MaxPrice       float64

	// OnStrategyError selects how a failing strategy iteration is
	// handled: infra.OnStrategyErrorHalt aborts the run,
	// infra.OnStrategyErrorSkip logs and moves to the next step. There
	// is no default; an unset value fails validation.
	OnStrategyError string
}

func (c Config) validate() error {
	if c.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if !c.End.After(c.Start) {
		return fmt.Errorf("end %s must be after start %s", c.End, c.Start)
	}
	if c.Step <= 0 {
		return fmt.Errorf("step must be positive, got %s", c.Step)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %v", c.InitialCapital)
	}
	switch c.OnStrategyError {
	case infra.OnStrategyErrorHalt, infra.OnStrategyErrorSkip:
	default:
		return fmt.Errorf("on_strategy_error must be %q or %q, got %q",
			infra.OnStrategyErrorHalt, infra.OnStrategyErrorSkip, c.OnStrategyError)
	}
	return nil
}

// Result is everything a completed or failed run produced. A failed run
// still carries the equity samples and trades recorded before the
// failure.
type Result struct {
	RunID      uuid.UUID                  `json:"runId"`
	FinalState State                      `json:"finalState"`
	Strategy   string                     `json:"strategy"`
	Config     Config                     `json:"config"`
	Report     loader.Report              `json:"dataReport"`
	Curve      []domain.EquitySample      `json:"equityCurve"`
	Trades     []domain.TradeRecord       `json:"trades"`
	Positions  map[string]domain.Position `json:"positions"`
	Metrics    metrics.Summary            `json:"metrics"`

	// IterationErrors holds strategy errors tolerated under the skip
	// policy. Under halt the single fatal error appears here too.
	IterationErrors []string `json:"iterationErrors,omitempty"`

	Err error `json:"-"`
}

// Engine replays a strategy over historical data. It owns the state
// machine: Idle, Loading, Running, then Completed or Failed. A run
// executes to completion once started; context cancellation is honored
// during loading but not mid-replay, so a finished run is always
// internally consistent.
type Engine struct {
	cfg    Config
	loader *loader.Loader
	strat  strategy.Strategy
	logger *slog.Logger

	state State
}

func New(cfg Config, ldr *loader.Loader, strat strategy.Strategy) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	return &Engine{
		cfg:    cfg,
		loader: ldr,
		strat:  strat,
		logger: slog.Default().With("module", "engine"),
		state:  StateIdle,
	}, nil
}

// State returns the engine's current lifecycle phase.
func (e *Engine) State() State {
	return e.state
}

// Run executes the full replay and returns its result. The returned
// Result is populated even on failure; Result.Err carries the cause.
// A panicking strategy does not take the process down: the run fails
// and the samples recorded so far survive for the post-mortem.
func (e *Engine) Run(ctx context.Context) (res *Result) {
	res = &Result{
		RunID:  uuid.New(),
		Config: e.cfg,
	}
	defer func() {
		if r := recover(); r != nil {
			res = e.fail(res, fmt.Errorf("replay panicked: %v", r))
		}
	}()
	if named, ok := e.strat.(strategy.Name); ok {
		res.Strategy = named.Name()
	}

	// 1. Load and validate the historical window.
	e.state = StateLoading
	e.logger.Info("loading history",
		slog.String("run_id", res.RunID.String()),
		slog.String("instrument", e.cfg.Instrument),
		slog.Time("start", e.cfg.Start),
		slog.Time("end", e.cfg.End))

	series, err := e.loader.Load(ctx, e.cfg.Instrument, e.cfg.Start, e.cfg.End, e.cfg.FidelityMinutes)
	if err != nil {
		return e.fail(res, fmt.Errorf("loading data: %w", err))
	}

	res.Report = e.loader.Validate(series, e.cfg.Start, e.cfg.End, e.cfg.FidelityMinutes)
	e.logger.Info("data validated", slog.String("report", res.Report.Describe()))
	if verr := res.Report.Err(e.cfg.Start, e.cfg.End); verr != nil {
		return e.fail(res, verr)
	}

	// 2. Build the simulation over the validated series.
	clock := sim.NewClock(e.cfg.Start, e.cfg.End)
	exchange := sim.NewMockExchange(sim.ExchangeConfig{
		InitialCapital: e.cfg.InitialCapital,
		SlippagePct:    e.cfg.SlippagePct,
		FeePct:         e.cfg.FeePct,
		MinPrice:       e.cfg.MinPrice,
		MaxPrice:       e.cfg.MaxPrice,
	}, clock, series)

	// 3. Step through the window.
	e.state = StateRunning
	e.logger.Info("replay started", slog.String("run_id", res.RunID.String()))

	step := 0
	for {
		sample, serr := exchange.Sample()
		if serr != nil {
			return e.finish(res, exchange, fmt.Errorf("sampling equity at step %d: %w", step, serr))
		}
		res.Curve = append(res.Curve, sample)

		if err := e.strat.RunIteration(ctx, exchange); err != nil {
			iterErr := &domain.StrategyIterationError{
				Timestamp: clock.Now(),
				Step:      step,
				Err:       err,
			}
			res.IterationErrors = append(res.IterationErrors, iterErr.Error())

			if e.cfg.OnStrategyError == infra.OnStrategyErrorHalt {
				return e.finish(res, exchange, iterErr)
			}
			e.logger.Warn("strategy iteration skipped",
				slog.Int("step", step),
				slog.Time("at", clock.Now()),
				slog.Any("error", err))
		}

		if !clock.Advance(e.cfg.Step) {
			break
		}
		step++
	}

	// 4. Final equity point and metrics.
	return e.finish(res, exchange, nil)
}

// finish closes out a run, carrying over the trades and positions
// recorded so far, and computes metrics for completed runs.
func (e *Engine) finish(res *Result, exchange *sim.MockExchange, cause error) *Result {
	res.Trades = exchange.Trades()
	res.Positions = exchange.Positions()

	if cause != nil {
		return e.fail(res, cause)
	}

	res.Metrics = metrics.Calculate(res.Curve, res.Trades, e.cfg.Step)
	e.state = StateCompleted
	res.FinalState = StateCompleted
	e.logger.Info("replay completed",
		slog.String("run_id", res.RunID.String()),
		slog.Int("steps", len(res.Curve)),
		slog.Int("trades", len(res.Trades)),
		slog.Float64("total_return_pct", res.Metrics.TotalReturn))
	return res
}

func (e *Engine) fail(res *Result, cause error) *Result {
	e.state = StateFailed
	res.FinalState = StateFailed
	res.Err = cause
	e.logger.Error("replay failed",
		slog.String("run_id", res.RunID.String()),
		slog.Any("error", cause))
	return res
}
