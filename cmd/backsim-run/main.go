// backsim-run executes one backtest over the configured symbols and date
// range, prints a summary, and persists the run to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backsim/internal/config"
	"backsim/internal/domain"
	"backsim/internal/engine"
	"backsim/internal/store"
	"backsim/internal/strategy"
	"backsim/internal/strategy/builtins"
	"backsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("backsim-run: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	start, end, err := cfg.Backtest.Range()
	if err != nil {
		return err
	}

	bars, err := loadBars(ctx, store.NewParquetStore(cfg.Storage.DataDir), cfg.Backtest.Symbols, start, end)
	if err != nil {
		return err
	}

	registry := strategy.NewRegistry()
	builtins.Register(registry)
	strat, ok := registry.New(cfg.Backtest.Strategy, cfg.Backtest.Params)
	if !ok {
		return fmt.Errorf("unknown strategy %q (available: %v)", cfg.Backtest.Strategy, registry.List())
	}

	eng, err := engine.New(engine.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		Broker:         cfg.Broker,
	}, slog.Default())
	if err != nil {
		return err
	}

	runStarted := time.Now()
	result, err := eng.Run(ctx, strat, bars)
	if err != nil {
		return err
	}

	printSummary(cfg.Backtest.Strategy, result)

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runs.Close()

	id, err := runs.SaveRun(ctx, &store.RunRecord{
		Strategy:    cfg.Backtest.Strategy,
		StartedAt:   runStarted,
		RangeStart:  start,
		RangeEnd:    end,
		FinalEquity: result.FinalEquity,
		TotalReturn: result.TotalReturn,
		SharpeRatio: result.SharpeRatio,
		MaxDrawdown: result.MaxDrawdown,
		NumTrades:   result.NumTrades,
	})
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	slog.Info("run saved", "id", id)
	return nil
}

// loadBars reads each configured symbol's bars from the store. A symbol
// with no data in range is an error rather than a silent gap.
func loadBars(ctx context.Context, bs store.BarStore, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	bars := make(map[string][]domain.Bar, len(symbols))
	for _, symbol := range symbols {
		data, err := bs.ReadBars(ctx, symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("no bars for %s in %s..%s (run backsim-fetch first?)",
				symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
		bars[symbol] = data
	}
	return bars, nil
}

func printSummary(strategyName string, r *engine.BacktestResult) {
	fmt.Printf("strategy:       %s\n", strategyName)
	fmt.Printf("initial:        %.2f\n", r.InitialCapital)
	fmt.Printf("final equity:   %.2f\n", r.FinalEquity)
	fmt.Printf("total return:   %.2f%%\n", r.TotalReturn*100)
	fmt.Printf("sharpe:         %.2f\n", r.SharpeRatio)
	fmt.Printf("max drawdown:   %.2f%%\n", r.MaxDrawdown*100)
	fmt.Printf("win rate:       %.2f%%\n", r.WinRate*100)
	fmt.Printf("profit factor:  %.2f\n", r.ProfitFactor)
	fmt.Printf("trades:         %d\n", r.NumTrades)
}

func defaultConfigPath() string {
	if p := os.Getenv("BACKSIM_CONFIG"); p != "" {
		return p
	}
	return "config/backsim.yaml"
}
