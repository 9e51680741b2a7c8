// Package walkforward repeatedly re-runs the backtest engine over rolling
// train/test windows and aggregates the out-of-sample results. Stitching
// only the test ranges together is the defense against the overfitting
// baked into any single full-period backtest.
package walkforward

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backsim/internal/domain"
	"backsim/internal/engine"
	"backsim/internal/metric"
	"backsim/internal/parallel"
	"backsim/internal/strategy"
)

// Window is one (train, test) split. Ranges are half-open: [Start, End).
type Window struct {
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
}

// Config controls window generation.
type Config struct {
	TrainLen time.Duration
	TestLen  time.Duration
	// Step advances the window start each iteration. Zero means advance by
	// TestLen, which tiles the test ranges with no gaps and no overlap.
	Step time.Duration
	// Workers bounds the number of windows optimized concurrently. Zero
	// uses all CPUs.
	Workers int
}

// Validate fails fast on degenerate window shapes.
func (c Config) Validate() error {
	if c.TrainLen <= 0 {
		return fmt.Errorf("walkforward: train length must be positive, got %v", c.TrainLen)
	}
	if c.TestLen <= 0 {
		return fmt.Errorf("walkforward: test length must be positive, got %v", c.TestLen)
	}
	if c.Step < 0 {
		return fmt.Errorf("walkforward: step must be non-negative, got %v", c.Step)
	}
	if c.Step != 0 && c.Step < c.TestLen {
		return fmt.Errorf("walkforward: step %v below test length %v would overlap test ranges", c.Step, c.TestLen)
	}
	return nil
}

// Windows slices [start, end) into consecutive train/test windows. The
// last window is dropped rather than truncated if its test range would
// run past end.
func (c Config) Windows(start, end time.Time) ([]Window, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	step := c.Step
	if step == 0 {
		step = c.TestLen
	}

	var windows []Window
	for cursor := start; ; cursor = cursor.Add(step) {
		trainEnd := cursor.Add(c.TrainLen)
		testEnd := trainEnd.Add(c.TestLen)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, Window{
			TrainStart: cursor,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    testEnd,
		})
	}
	return windows, nil
}

// Optimizer re-fits strategy parameters using only train-range data. The
// optimization method itself is the caller's business; the analyzer just
// defines the slicing contract.
type Optimizer func(ctx context.Context, trainBars map[string][]domain.Bar) (strategy.Params, error)

// WindowResult is the retained summary of one window.
type WindowResult struct {
	Window Window
	Params strategy.Params
	Result *engine.BacktestResult
	Err    error
}

// Report is the aggregate outcome of a walk-forward run.
type Report struct {
	Windows []WindowResult
	// EquityCurve is the test-range curves concatenated end to end.
	EquityCurve []domain.EquityPoint
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	NumTrades   int
}

// Analyzer drives one engine run per window.
type Analyzer struct {
	cfg       Config
	engineCfg engine.Config
	registry  *strategy.Registry
	log       *slog.Logger
}

// New creates an Analyzer. Each window's test run gets a fresh engine and
// a fresh strategy instance built from the registry.
func New(cfg Config, engineCfg engine.Config, registry *strategy.Registry, log *slog.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		cfg:       cfg,
		engineCfg: engineCfg,
		registry:  registry,
		log:       log.With("component", "walkforward"),
	}, nil
}

// Run slices [start, end) into windows, optimizes on each train range,
// backtests the named strategy on each test range, and aggregates the
// out-of-sample results. A failed window is recorded in its WindowResult
// and excluded from the aggregate; siblings still run.
func (a *Analyzer) Run(
	ctx context.Context,
	strategyName string,
	bars map[string][]domain.Bar,
	start, end time.Time,
	optimize Optimizer,
) (*Report, error) {
	windows, err := a.cfg.Windows(start, end)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("walkforward: range %s..%s yields no windows",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	// Windows are independent, so they fan out across workers. Results
	// come back in window order regardless of completion order.
	results := parallel.Map(ctx, windows, func(ctx context.Context, w Window) (WindowResult, error) {
		return a.runWindow(ctx, strategyName, bars, w, optimize), nil
	}, a.cfg.Workers, func(completed, total int) {
		a.log.Info("window done", "completed", completed, "total", total)
	})

	report := &Report{Windows: make([]WindowResult, 0, len(windows))}
	for i, res := range results {
		wr := res.Value
		if res.Err != nil {
			// Only a panic inside runWindow surfaces here; runWindow
			// reports ordinary failures through WindowResult.Err.
			wr = WindowResult{Window: windows[i], Err: res.Err}
		}
		if wr.Err != nil {
			a.log.Warn("window failed", "window", i, "error", wr.Err)
		}
		report.Windows = append(report.Windows, wr)
	}

	a.aggregate(report)
	return report, nil
}

func (a *Analyzer) runWindow(
	ctx context.Context,
	strategyName string,
	bars map[string][]domain.Bar,
	w Window,
	optimize Optimizer,
) WindowResult {
	wr := WindowResult{Window: w}

	params := strategy.Params{}
	if optimize != nil {
		trainBars := sliceBars(bars, w.TrainStart, w.TrainEnd)
		p, err := optimize(ctx, trainBars)
		if err != nil {
			wr.Err = fmt.Errorf("walkforward: optimizing %s..%s: %w",
				w.TrainStart.Format("2006-01-02"), w.TrainEnd.Format("2006-01-02"), err)
			return wr
		}
		params = p
	}
	wr.Params = params

	strat, ok := a.registry.New(strategyName, params)
	if !ok {
		wr.Err = fmt.Errorf("walkforward: unknown strategy %q", strategyName)
		return wr
	}

	eng, err := engine.New(a.engineCfg, a.log)
	if err != nil {
		wr.Err = err
		return wr
	}

	testBars := sliceBars(bars, w.TestStart, w.TestEnd)
	res, err := eng.Run(ctx, strat, testBars)
	wr.Result = res
	wr.Err = err
	return wr
}

// aggregate stitches the successful windows' test equity curves end to
// end. Windows never overlap by construction, so concatenation preserves
// chronological order.
func (a *Analyzer) aggregate(report *Report) {
	equity := a.engineCfg.InitialCapital
	for _, wr := range report.Windows {
		if wr.Err != nil || wr.Result == nil {
			continue
		}
		// Chain each window's curve onto the running equity by compounding
		// its per-window return.
		scale := equity / wr.Result.InitialCapital
		for _, pt := range wr.Result.EquityCurve {
			report.EquityCurve = append(report.EquityCurve, domain.EquityPoint{
				Timestamp: pt.Timestamp,
				Equity:    pt.Equity * scale,
			})
		}
		if n := len(wr.Result.EquityCurve); n > 0 {
			equity = wr.Result.EquityCurve[n-1].Equity * scale
		}
		report.NumTrades += wr.Result.NumTrades
	}

	periods := a.engineCfg.TradingDaysPerYear
	if periods == 0 {
		periods = 252
	}
	// Total return is against initial capital, matching the engine's
	// definition, not against the first marked point (which already
	// carries day-one costs).
	report.TotalReturn = equity/a.engineCfg.InitialCapital - 1
	report.SharpeRatio = metric.SharpeRatio(report.EquityCurve, periods)
	report.MaxDrawdown = metric.MaxDrawdown(report.EquityCurve)
}

// sliceBars restricts bars to [start, end) per symbol.
func sliceBars(bars map[string][]domain.Bar, start, end time.Time) map[string][]domain.Bar {
	out := make(map[string][]domain.Bar, len(bars))
	for symbol, symBars := range bars {
		var kept []domain.Bar
		for _, b := range symBars {
			if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 {
			out[symbol] = kept
		}
	}
	return out
}
