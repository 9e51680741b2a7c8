// Package config loads and validates the backsim YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backsim/internal/broker"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for backsim.
type Config struct {
	Storage     Storage           `yaml:"storage"`
	Logging     Logging           `yaml:"logging"`
	Broker      broker.Config     `yaml:"broker"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	WalkForward WalkForwardConfig `yaml:"walkforward"`
	Fetch       FetchConfig       `yaml:"fetch"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines a single simulation run.
type BacktestConfig struct {
	InitialCapital float64            `yaml:"initial_capital"`
	Symbols        []string           `yaml:"symbols"`
	StartDate      string             `yaml:"start_date"` // YYYY-MM-DD
	EndDate        string             `yaml:"end_date"`   // YYYY-MM-DD
	Strategy       string             `yaml:"strategy"`
	Params         map[string]float64 `yaml:"params"`
}

// Range parses the configured date range.
func (c BacktestConfig) Range() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: bad start_date %q: %w", c.StartDate, err)
	}
	end, err = time.Parse("2006-01-02", c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: bad end_date %q: %w", c.EndDate, err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("config: start_date %s must precede end_date %s", c.StartDate, c.EndDate)
	}
	return start, end, nil
}

// WalkForwardConfig defines the rolling train/test analysis.
type WalkForwardConfig struct {
	TrainDays int `yaml:"train_days"`
	TestDays  int `yaml:"test_days"`
	StepDays  int `yaml:"step_days"` // 0 advances by test_days
	Workers   int `yaml:"workers"`   // 0 uses all CPUs
}

// FetchConfig holds credentials and parameters for downloading historical
// bars from the Alpaca market-data API.
type FetchConfig struct {
	APIKey          string   `yaml:"api_key"`
	APISecret       string   `yaml:"api_secret"`
	DataURL         string   `yaml:"data_url"`
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into
// a Config struct, and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate fails fast on configuration the simulator cannot run with.
func (c *Config) Validate() error {
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("config: initial_capital must be positive, got %v", c.Backtest.InitialCapital)
	}
	if _, _, err := c.Backtest.Range(); err != nil {
		return err
	}
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if c.WalkForward.TrainDays < 0 || c.WalkForward.TestDays < 0 || c.WalkForward.StepDays < 0 {
		return fmt.Errorf("config: walkforward day counts must be non-negative")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Fetch.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Fetch.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Fetch.DataURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by
	// the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Fetch.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Fetch.APISecret = v
	}
}
