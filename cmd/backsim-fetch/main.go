// backsim-fetch downloads daily bars from the Alpaca market-data API into
// the local Parquet store for later backtesting.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"backsim/internal/config"
	"backsim/internal/fetch"
	"backsim/internal/store"
	"backsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (overrides fetch.symbols)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	symbols := cfg.Fetch.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
	}

	start, err := time.Parse("2006-01-02", cfg.Fetch.StartDate)
	if err != nil {
		log.Fatalf("invalid fetch.start_date %q: %v", cfg.Fetch.StartDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)

	fetcher := fetch.NewDailyBarFetcher(
		cfg.Fetch.APIKey,
		cfg.Fetch.APISecret,
		cfg.Fetch.DataURL,
		store.NewParquetStore(cfg.Storage.DataDir),
		cfg.Fetch.BatchSize,
		cfg.Fetch.RateLimitPerMin,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := fetcher.Run(ctx, symbols, start, end); err != nil {
		log.Fatalf("backsim-fetch: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("BACKSIM_CONFIG"); p != "" {
		return p
	}
	return "config/backsim.yaml"
}
