// backsim-walkforward runs a rolling train/test walk-forward analysis
// over the configured range, re-optimizing strategy parameters on each
// training window, and persists the aggregate run plus the per-window
// parameters to SQLite.
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
	"backsim/internal/walkforward"
)

const day = 24 * time.Hour

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
		log.Fatalf("backsim-walkforward: %v", err)
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

	engineCfg := engine.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		Broker:         cfg.Broker,
	}

	analyzer, err := walkforward.New(walkforward.Config{
		TrainLen: time.Duration(cfg.WalkForward.TrainDays) * day,
		TestLen:  time.Duration(cfg.WalkForward.TestDays) * day,
		Step:     time.Duration(cfg.WalkForward.StepDays) * day,
		Workers:  cfg.WalkForward.Workers,
	}, engineCfg, registry, slog.Default())
	if err != nil {
		return err
	}

	optimize := gridOptimizer(cfg.Backtest.Strategy, cfg.Backtest.Params, engineCfg, registry)

	runStarted := time.Now()
	report, err := analyzer.Run(ctx, cfg.Backtest.Strategy, bars, start, end, optimize)
	if err != nil {
		return err
	}

	printReport(report)
	return persist(ctx, cfg, report, start, end, runStarted)
}

// gridOptimizer returns an Optimizer that backtests every parameter set
// from the strategy's candidate grid on the training range and keeps the
// one with the best Sharpe ratio. Strategies with no grid keep the
// configured parameters as-is.
func gridOptimizer(
	strategyName string,
	base strategy.Params,
	engineCfg engine.Config,
	registry *strategy.Registry,
) walkforward.Optimizer {
	grid := candidateGrid(strategyName, base)

	return func(ctx context.Context, trainBars map[string][]domain.Bar) (strategy.Params, error) {
		if len(grid) == 0 {
			return base, nil
		}

		var best strategy.Params
		bestSharpe := 0.0
		for _, candidate := range grid {
			strat, ok := registry.New(strategyName, candidate)
			if !ok {
				return nil, fmt.Errorf("unknown strategy %q", strategyName)
			}
			eng, err := engine.New(engineCfg, slog.Default())
			if err != nil {
				return nil, err
			}
			result, err := eng.Run(ctx, strat, trainBars)
			if err != nil {
				return nil, fmt.Errorf("training run %v: %w", candidate, err)
			}
			if best == nil || result.SharpeRatio > bestSharpe {
				best = candidate
				bestSharpe = result.SharpeRatio
			}
		}
		return best, nil
	}
}

// candidateGrid enumerates the parameter sets the optimizer may choose
// from. Every candidate starts from the configured base so parameters
// outside the swept ones carry through.
func candidateGrid(strategyName string, base strategy.Params) []strategy.Params {
	if strategyName != "sma-cross" {
		return nil
	}

	var grid []strategy.Params
	for _, short := range []float64{5, 10, 20} {
		for _, long := range []float64{30, 50, 100} {
			if short >= long {
				continue
			}
			candidate := strategy.Params{}
			for name, value := range base {
				candidate[name] = value
			}
			candidate["short"] = short
			candidate["long"] = long
			grid = append(grid, candidate)
		}
	}
	return grid
}

func persist(ctx context.Context, cfg *config.Config, report *walkforward.Report, start, end, runStarted time.Time) error {
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runs.Close()

	finalEquity := cfg.Backtest.InitialCapital * (1 + report.TotalReturn)
	id, err := runs.SaveRun(ctx, &store.RunRecord{
		Strategy:    cfg.Backtest.Strategy + "/walkforward",
		StartedAt:   runStarted,
		RangeStart:  start,
		RangeEnd:    end,
		FinalEquity: finalEquity,
		TotalReturn: report.TotalReturn,
		SharpeRatio: report.SharpeRatio,
		MaxDrawdown: report.MaxDrawdown,
		NumTrades:   report.NumTrades,
	})
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	var params []store.ParamRecord
	for i, wr := range report.Windows {
		if wr.Err != nil {
			continue
		}
		for name, value := range wr.Params {
			params = append(params, store.ParamRecord{
				RunID:      id,
				WindowIdx:  i,
				TrainStart: wr.Window.TrainStart,
				TrainEnd:   wr.Window.TrainEnd,
				Name:       name,
				Value:      value,
			})
		}
	}
	if err := runs.SaveParams(ctx, params); err != nil {
		return fmt.Errorf("saving params: %w", err)
	}

	slog.Info("walk-forward run saved", "id", id, "params", len(params))
	return nil
}

func printReport(r *walkforward.Report) {
	var failed int
	for _, wr := range r.Windows {
		if wr.Err != nil {
			failed++
		}
	}
	fmt.Printf("windows:        %d (%d failed)\n", len(r.Windows), failed)
	fmt.Printf("total return:   %.2f%%\n", r.TotalReturn*100)
	fmt.Printf("sharpe:         %.2f\n", r.SharpeRatio)
	fmt.Printf("max drawdown:   %.2f%%\n", r.MaxDrawdown*100)
	fmt.Printf("trades:         %d\n", r.NumTrades)
	for i, wr := range r.Windows {
		if wr.Err != nil {
			fmt.Printf("  window %2d: FAILED: %v\n", i, wr.Err)
			continue
		}
		fmt.Printf("  window %2d: test %s..%s return %.2f%% params %v\n",
			i,
			wr.Window.TestStart.Format("2006-01-02"),
			wr.Window.TestEnd.Format("2006-01-02"),
			wr.Result.TotalReturn*100,
			wr.Params,
		)
	}
}

// loadBars reads each configured symbol's bars from the store.
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

func defaultConfigPath() string {
	if p := os.Getenv("BACKSIM_CONFIG"); p != "" {
		return p
	}
	return "config/backsim.yaml"
}
