package app

import (
	"fmt"
	"log/slog"
	"time"

	"backtest_go/internal/engine"
	"backtest_go/internal/infra"
	"backtest_go/internal/infra/history"
	"backtest_go/internal/infra/storage"
	"backtest_go/internal/loader"
	"backtest_go/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config *infra.Config
	Cache  *storage.Cache
	Loader *loader.Loader
	Engine *engine.Engine
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize wires the full pipeline: config, logger, cache, data
// loading client, strategy and engine.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping backtest engine...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Price cache (SQLite)
	cache, err := storage.NewCache(cfg.Data.CachePath)
	if err != nil {
		return fmt.Errorf("opening price cache: %w", err)
	}
	b.Cache = cache
	slog.Info("✅ Price cache initialized", slog.String("path", cfg.Data.CachePath))

	// 4. Rate-limited history client
	limiter := infra.NewSlidingWindowLimiter(cfg.Data.RequestsPer10s, 10*time.Second)
	retry := infra.RetryPolicy{
		MaxAttempts: cfg.Data.RetryAttempts,
		BaseDelay:   time.Duration(cfg.Data.RetryBaseMillis) * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
	client := history.NewClient(cfg.Data.BaseURL,
		time.Duration(cfg.Data.TimeoutSeconds)*time.Second, limiter, retry)

	minPrice, _ := cfg.Data.PriceDomain.Min.Float64()
	maxPrice, _ := cfg.Data.PriceDomain.Max.Float64()
	b.Loader = loader.New(cache, client, loader.Options{
		ChunkDays:   cfg.Data.ChunkDays,
		MaxParallel: cfg.Data.MaxParallel,
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
	})
	slog.Info("✅ Data loader ready",
		slog.String("base_url", cfg.Data.BaseURL),
		slog.Int("requests_per_10s", cfg.Data.RequestsPer10s))

	// 5. Strategy and engine
	strat, err := buildStrategy(cfg)
	if err != nil {
		return err
	}

	start, end, err := cfg.Window()
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Config{
		Instrument:      cfg.Run.Instrument,
		Start:           start,
		End:             end,
		FidelityMinutes: cfg.Run.FidelityMinutes,
		Step:            time.Duration(cfg.Run.StepMinutes) * time.Minute,
		InitialCapital:  cfg.Run.InitialCapital,
		SlippagePct:     cfg.Run.SlippagePct,
		FeePct:          cfg.Run.FeePct,
		MinPrice:        minPrice,
		MaxPrice:        maxPrice,
		OnStrategyError: cfg.Run.OnStrategyError,
	}, b.Loader, strat)
	if err != nil {
		return err
	}
	b.Engine = eng
	slog.Info("✅ Engine ready", slog.String("strategy", cfg.Strategy.Name))

	return nil
}

func buildStrategy(cfg *infra.Config) (strategy.Strategy, error) {
	switch cfg.Strategy.Name {
	case "sma_cross", "":
		return strategy.NewSMACross(cfg.Run.Instrument,
			cfg.Strategy.ShortPeriod, cfg.Strategy.LongPeriod, cfg.Strategy.OrderSize)
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
	}
}
