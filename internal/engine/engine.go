// Package engine orchestrates a backtest: it replays historical bars
// through a strategy in chronological order, prices the resulting orders
// through the simulated broker, books fills into the ledger, and produces
// the run's result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"backsim/internal/broker"
	"backsim/internal/domain"
	"backsim/internal/ledger"
	"backsim/internal/metric"
	"backsim/internal/pipeline"
	"backsim/internal/strategy"
)

// State is the engine's run lifecycle. Completed and Failed are terminal.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ErrAlreadyRun is returned when Run is called on an engine that has
// already left the idle state.
var ErrAlreadyRun = errors.New("engine: run already consumed")

// ErrStrategyFailure wraps an error raised inside a strategy callback. The
// run stops at the failing bar; partial results are preserved.
var ErrStrategyFailure = errors.New("engine: strategy failure")

// Config holds the simulation parameters of one run.
type Config struct {
	InitialCapital float64
	Broker         broker.Config
	// TradingDaysPerYear is used to annualize the Sharpe ratio. Zero means
	// the 252-day equity convention.
	TradingDaysPerYear float64
}

// Validate fails fast on configuration the simulation cannot run with.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("engine: initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.TradingDaysPerYear < 0 {
		return fmt.Errorf("engine: trading days per year must be non-negative, got %v", c.TradingDaysPerYear)
	}
	return c.Broker.Validate()
}

// BacktestResult is the immutable outcome of one run. The caller owns it
// after Run returns.
type BacktestResult struct {
	EquityCurve    []domain.EquityPoint
	TradeLog       []domain.FillEvent
	Positions      map[string]domain.Position
	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64
	NumTrades      int
	SharpeRatio    float64
	MaxDrawdown    float64
	WinRate        float64
	ProfitFactor   float64
}

// Engine drives one backtest run. An Engine owns its ledger exclusively;
// it is single-threaded and must not be shared across goroutines.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	state State
}

// New creates an Engine for a single run, validating the configuration up
// front.
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:   cfg,
		log:   log.With("component", "engine"),
		state: StateIdle,
	}, nil
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Run replays bars (per symbol, any order; sorted internally) through the
// strategy and returns the run's result. On a strategy error the run
// transitions to Failed and the partial result up to the failing bar is
// returned alongside the wrapped error.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, bars map[string][]domain.Bar) (*BacktestResult, error) {
	if e.state != StateIdle {
		return nil, ErrAlreadyRun
	}
	e.state = StateRunning

	if err := strat.Init(ctx); err != nil {
		e.state = StateFailed
		return nil, fmt.Errorf("%w: init: %v", ErrStrategyFailure, err)
	}

	timeline := buildTimeline(bars)
	book := ledger.New(e.cfg.InitialCapital)
	lastPrices := make(map[string]float64)
	active := make(map[string]bool)

	e.log.Debug("run starting",
		"strategy", strat.Name(),
		"symbols", len(bars),
		"timestamps", len(timeline.stamps))

	for _, t := range timeline.stamps {
		if err := ctx.Err(); err != nil {
			e.state = StateFailed
			return e.result(book), fmt.Errorf("engine: run aborted at %s: %w", t.Format(time.RFC3339), err)
		}

		events, history := timeline.eventsAt(t)
		slice := domain.NewSliceFromEvents(t, events, history)
		for _, ev := range events {
			lastPrices[ev.Symbol] = ev.Bar.Close
		}

		// Notify the strategy before its data callback when symbols start
		// or stop delivering bars.
		added, removed := membershipDelta(active, events, timeline, t)
		if len(added) > 0 || len(removed) > 0 {
			strat.OnSecuritiesChanged(added, removed)
		}

		state := e.portfolioState(book, lastPrices)
		orders, err := strat.OnData(ctx, slice, state)
		if err != nil {
			e.state = StateFailed
			return e.result(book), fmt.Errorf("%w: %s at %s: %v",
				ErrStrategyFailure, strat.Name(), t.Format(time.RFC3339), err)
		}

		for _, order := range orders {
			price := lastPrices[order.Symbol]
			fill, err := broker.Fill(order, price, t, e.cfg.Broker)
			if err != nil {
				e.state = StateFailed
				return e.result(book), fmt.Errorf("engine: executing %s %s: %w",
					order.Side, order.Symbol, err)
			}
			book.ApplyFill(fill)
		}

		// Exactly one equity sample per timestamp, after all fills.
		book.MarkToMarket(t, lastPrices)
	}

	e.state = StateCompleted
	res := e.result(book)
	e.log.Debug("run completed",
		"strategy", strat.Name(),
		"final_equity", res.FinalEquity,
		"trades", res.NumTrades)
	return res, nil
}

// portfolioState snapshots ledger state for the strategy without mutating
// the equity curve.
func (e *Engine) portfolioState(book *ledger.Ledger, prices map[string]float64) pipeline.PortfolioState {
	positions := book.Positions()
	equity := book.Cash()
	for symbol, pos := range positions {
		if price, ok := prices[symbol]; ok {
			equity += pos.MarketValue(price)
		} else {
			equity += pos.MarketValue(pos.AverageCost)
		}
	}
	return pipeline.PortfolioState{
		Cash:      book.Cash(),
		Equity:    equity,
		Positions: positions,
		Prices:    prices,
	}
}

// result assembles the (possibly partial) BacktestResult from ledger
// state.
func (e *Engine) result(book *ledger.Ledger) *BacktestResult {
	curve := book.EquityCurve()
	trades := book.TradeLog()

	finalEquity := e.cfg.InitialCapital
	if len(curve) > 0 {
		finalEquity = curve[len(curve)-1].Equity
	}

	periods := e.cfg.TradingDaysPerYear
	if periods == 0 {
		periods = 252
	}

	return &BacktestResult{
		EquityCurve:    curve,
		TradeLog:       trades,
		Positions:      book.Positions(),
		InitialCapital: e.cfg.InitialCapital,
		FinalEquity:    finalEquity,
		TotalReturn:    finalEquity/e.cfg.InitialCapital - 1,
		NumTrades:      len(trades),
		SharpeRatio:    metric.SharpeRatio(curve, periods),
		MaxDrawdown:    metric.MaxDrawdown(curve),
		WinRate:        metric.WinRate(trades),
		ProfitFactor:   metric.ProfitFactor(trades),
	}
}

// timeline is the chronological event stream for one run: every bar of
// every symbol sorted by timestamp, with per-symbol cursors so history
// views never reach past the current bar.
type timeline struct {
	stamps  []time.Time
	bars    map[string][]domain.Bar // sorted per symbol
	cursors map[string]int          // bars visible so far per symbol
}

func buildTimeline(bars map[string][]domain.Bar) *timeline {
	sorted := make(map[string][]domain.Bar, len(bars))
	// Dedup by instant: the same moment in two locations is one timestamp.
	seen := make(map[int64]bool)
	var stamps []time.Time

	for symbol, symBars := range bars {
		cp := make([]domain.Bar, len(symBars))
		copy(cp, symBars)
		sort.SliceStable(cp, func(i, j int) bool {
			return cp[i].Timestamp.Before(cp[j].Timestamp)
		})
		sorted[symbol] = cp
		for _, b := range cp {
			if ns := b.Timestamp.UnixNano(); !seen[ns] {
				seen[ns] = true
				stamps = append(stamps, b.Timestamp)
			}
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	return &timeline{
		stamps:  stamps,
		bars:    sorted,
		cursors: make(map[string]int, len(sorted)),
	}
}

// eventsAt advances cursors to t and returns one MarketEvent per symbol
// with a bar at t, sorted by symbol, plus per-symbol history views. The
// history handed out reaches up to and including t only, which is what
// makes look-ahead impossible by construction.
func (tl *timeline) eventsAt(t time.Time) ([]domain.MarketEvent, map[string][]domain.Bar) {
	var events []domain.MarketEvent
	history := make(map[string][]domain.Bar)

	for symbol, symBars := range tl.bars {
		i := tl.cursors[symbol]
		for i < len(symBars) && !symBars[i].Timestamp.After(t) {
			i++
		}
		tl.cursors[symbol] = i
		if i == 0 {
			continue
		}
		history[symbol] = symBars[:i]
		if last := symBars[i-1]; last.Timestamp.Equal(t) {
			events = append(events, domain.NewMarketEvent(last))
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Symbol < events[j].Symbol })
	return events, history
}

// exhausted reports whether symbol has no bar at or after t.
func (tl *timeline) exhausted(symbol string, t time.Time) bool {
	symBars := tl.bars[symbol]
	return len(symBars) > 0 && symBars[len(symBars)-1].Timestamp.Before(t)
}

// membershipDelta updates active with the symbols delivering bars at t and
// returns which symbols started (first bar at t) and which stopped (no
// bars at or after t), both sorted.
func membershipDelta(active map[string]bool, events []domain.MarketEvent, tl *timeline, t time.Time) (added, removed []string) {
	for _, ev := range events {
		if !active[ev.Symbol] {
			active[ev.Symbol] = true
			added = append(added, ev.Symbol)
		}
	}
	for symbol := range active {
		if tl.exhausted(symbol, t) {
			removed = append(removed, symbol)
		}
	}
	for _, symbol := range removed {
		delete(active, symbol)
	}
	sort.Strings(removed)
	return added, removed
}
