package config

import (
	"os"
	"testing"

	"backsim/internal/broker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "backsim-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

const validYAML = `
storage:
  data_dir: "/tmp/backsim/data"
  sqlite_path: "/tmp/backsim/backsim.db"
logging:
  level: "info"
  format: "json"
broker:
  commission_type: "fixed"
  commission: 1.0
  slippage: 0.001
backtest:
  initial_capital: 100000
  symbols: ["AAPL", "MSFT"]
  start_date: "2023-01-01"
  end_date: "2024-01-01"
  strategy: "sma-cross"
  params:
    short: 10
    long: 30
walkforward:
  train_days: 120
  test_days: 30
  workers: 4
fetch:
  api_key: "test-key"
  api_secret: "test-secret"
  symbols: ["AAPL"]
  start_date: "2020-01-01"
  batch_size: 500
  rate_limit_per_min: 200
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_DATA_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/backsim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/backsim/data")
	}
	if cfg.Broker.CommissionType != broker.CommissionFixed {
		t.Errorf("Broker.CommissionType = %q, want fixed", cfg.Broker.CommissionType)
	}
	if cfg.Broker.Slippage != 0.001 {
		t.Errorf("Broker.Slippage = %v, want 0.001", cfg.Broker.Slippage)
	}
	if cfg.Backtest.InitialCapital != 100000 {
		t.Errorf("Backtest.InitialCapital = %v, want 100000", cfg.Backtest.InitialCapital)
	}
	if len(cfg.Backtest.Symbols) != 2 {
		t.Errorf("Backtest.Symbols = %v, want 2 symbols", cfg.Backtest.Symbols)
	}
	if cfg.Backtest.Params["short"] != 10 {
		t.Errorf("Backtest.Params[short] = %v, want 10", cfg.Backtest.Params["short"])
	}
	if cfg.WalkForward.TrainDays != 120 || cfg.WalkForward.TestDays != 30 {
		t.Errorf("WalkForward = %+v, want train 120 / test 30", cfg.WalkForward)
	}
	if cfg.Fetch.APIKey != "test-key" {
		t.Errorf("Fetch.APIKey = %q, want %q", cfg.Fetch.APIKey, "test-key")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() returned error for valid config: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATA_DIR", "/override/data")
	os.Setenv("APCA_API_KEY_ID", "env-key")
	t.Cleanup(func() { clearEnv(t) })

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/override/data" {
		t.Errorf("Storage.DataDir = %q, want env override", cfg.Storage.DataDir)
	}
	if cfg.Fetch.APIKey != "env-key" {
		t.Errorf("Fetch.APIKey = %q, want env override", cfg.Fetch.APIKey)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }},
		{"negative commission", func(c *Config) { c.Broker.Commission = -1 }},
		{"inverted dates", func(c *Config) { c.Backtest.StartDate, c.Backtest.EndDate = c.Backtest.EndDate, c.Backtest.StartDate }},
		{"unparseable date", func(c *Config) { c.Backtest.StartDate = "01/02/2023" }},
		{"negative walkforward days", func(c *Config) { c.WalkForward.TrainDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should reject this config")
			}
		})
	}
}

func TestBacktestRange(t *testing.T) {
	c := BacktestConfig{StartDate: "2023-01-01", EndDate: "2024-01-01"}
	start, end, err := c.Range()
	if err != nil {
		t.Fatalf("Range() returned error: %v", err)
	}
	if !start.Before(end) {
		t.Error("Range() start not before end")
	}
	if start.Year() != 2023 || end.Year() != 2024 {
		t.Errorf("Range() = %v..%v, wrong years", start, end)
	}
}
