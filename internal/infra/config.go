package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent identifies the backtester to the history API.
	DefaultUserAgent = "backtest-go/1.0"

	dateLayout = "2006-01-02"
)

// Strategy-error policies. There is no implicit default: Validate rejects
// configurations that leave the choice unset.
const (
	OnStrategyErrorHalt = "halt"
	OnStrategyErrorSkip = "skip"
)

// Config holds every setting for a backtest run. Sensitive or
// deployment-specific values can be overridden through environment
// variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Run struct {
		Instrument      string  `yaml:"instrument"`
		StartDate       string  `yaml:"start_date"` // YYYY-MM-DD
		EndDate         string  `yaml:"end_date"`   // YYYY-MM-DD
		FidelityMinutes int     `yaml:"fidelity_minutes"`
		StepMinutes     int     `yaml:"step_minutes"`
		InitialCapital  float64 `yaml:"initial_capital"`
		SlippagePct     float64 `yaml:"slippage_pct"`
		FeePct          float64 `yaml:"fee_pct"`
		OnStrategyError string  `yaml:"on_strategy_error"` // "halt" or "skip", required
		OutputDir       string  `yaml:"output_dir"`
	} `yaml:"run"`

	Data struct {
		BaseURL         string `yaml:"base_url"`
		CachePath       string `yaml:"cache_path"`
		RequestsPer10s  int    `yaml:"requests_per_10s"`
		ChunkDays       int    `yaml:"chunk_days"`
		MaxParallel     int    `yaml:"max_parallel"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		RetryAttempts   int    `yaml:"retry_attempts"`
		RetryBaseMillis int    `yaml:"retry_base_millis"`

		// Valid price domain for the asset class. Out-of-domain values in
		// loaded data are a hard validation error, never clamped.
		PriceDomain struct {
			Min decimal.Decimal `yaml:"min"`
			Max decimal.Decimal `yaml:"max"`
		} `yaml:"price_domain"`
	} `yaml:"data"`

	Strategy struct {
		Name        string  `yaml:"name"`
		ShortPeriod int     `yaml:"short_period"`
		LongPeriod  int     `yaml:"long_period"`
		OrderSize   float64 `yaml:"order_size"`
	} `yaml:"strategy"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Window parses the configured run window.
func (c *Config) Window() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, c.Run.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q: %w", c.Run.StartDate, err)
	}
	end, err = time.Parse(dateLayout, c.Run.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q: %w", c.Run.EndDate, err)
	}
	return start, end, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	start, end, err := c.Window()
	if err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("end_date must be after start_date")
	}

	if c.Run.Instrument == "" {
		return fmt.Errorf("run.instrument is required")
	}
	if c.Run.FidelityMinutes <= 0 {
		return fmt.Errorf("fidelity_minutes must be positive")
	}
	if c.Run.StepMinutes <= 0 {
		return fmt.Errorf("step_minutes must be positive")
	}
	if c.Run.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if c.Run.SlippagePct < 0 || c.Run.FeePct < 0 {
		return fmt.Errorf("slippage_pct and fee_pct must be non-negative")
	}

	// The behavior on a strategy failure is an explicit choice, never a default.
	switch c.Run.OnStrategyError {
	case OnStrategyErrorHalt, OnStrategyErrorSkip:
	case "":
		return fmt.Errorf("run.on_strategy_error is required: %q or %q",
			OnStrategyErrorHalt, OnStrategyErrorSkip)
	default:
		return fmt.Errorf("invalid on_strategy_error %q", c.Run.OnStrategyError)
	}

	if c.Data.BaseURL == "" {
		return fmt.Errorf("data.base_url is required")
	}
	if c.Data.RequestsPer10s <= 0 {
		return fmt.Errorf("requests_per_10s must be positive")
	}
	if c.Data.PriceDomain.Max.LessThanOrEqual(c.Data.PriceDomain.Min) {
		return fmt.Errorf("price_domain.max must exceed price_domain.min")
	}

	return nil
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("BACKTEST_DATA_URL"); url != "" {
		cfg.Data.BaseURL = url
	}
	if path := os.Getenv("BACKTEST_CACHE_PATH"); path != "" {
		cfg.Data.CachePath = path
	}
	if level := os.Getenv("BACKTEST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
