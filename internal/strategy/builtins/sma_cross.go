// Package builtins provides built-in strategy implementations that ship
// with backsim.
package builtins

import (
	"context"
	"math"

	"backsim/internal/domain"
	"backsim/internal/indicator"
	"backsim/internal/pipeline"
	"backsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a simple moving average crossover strategy: it targets a
// fixed long exposure in a symbol while the short-period SMA is above the
// long-period SMA, and exits when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	exposure    float64 // target fraction of equity per long symbol
	closes      map[string][]float64
}

// New creates an SMACross from parameters: "short" (default 10), "long"
// (default 30), "exposure" (default 0.5).
func New(params strategy.Params) strategy.Strategy {
	return &SMACross{
		shortPeriod: int(params.Get("short", 10)),
		longPeriod:  int(params.Get("long", 30)),
		exposure:    params.Get("exposure", 0.5),
		closes:      make(map[string][]float64),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init validates the configured periods.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 || s.longPeriod <= 0 {
		// Surface as an indicator validation error for consistency.
		_, err := indicator.SMA(nil, s.shortPeriod)
		if err == nil {
			_, err = indicator.SMA(nil, s.longPeriod)
		}
		return err
	}
	return nil
}

// OnData updates per-symbol close history, derives one signal per symbol
// with enough history, and converts the signals to rebalancing orders.
func (s *SMACross) OnData(_ context.Context, slice domain.Slice, state pipeline.PortfolioState) ([]domain.OrderEvent, error) {
	signals, err := s.evaluate(slice)
	if err != nil {
		return nil, err
	}
	return s.ordersFor(signals, slice, state), nil
}

// evaluate appends the cycle's closes and emits one SignalEvent per symbol
// whose history covers the long period: long while the short SMA is above
// the long SMA, flat otherwise. Strength is the relative SMA spread.
func (s *SMACross) evaluate(slice domain.Slice) ([]domain.SignalEvent, error) {
	var signals []domain.SignalEvent
	for _, symbol := range slice.Symbols() {
		bar, _ := slice.Bar(symbol)
		s.closes[symbol] = append(s.closes[symbol], bar.Close)

		closes := s.closes[symbol]
		if len(closes) < s.longPeriod {
			continue
		}

		short, err := indicator.SMA(closes, s.shortPeriod)
		if err != nil {
			return nil, err
		}
		long, err := indicator.SMA(closes, s.longPeriod)
		if err != nil {
			return nil, err
		}

		shortLast, longLast := short[len(short)-1], long[len(long)-1]
		direction := domain.DirectionFlat
		if shortLast > longLast {
			direction = domain.DirectionLong
		}
		var strength float64
		if longLast != 0 {
			strength = math.Abs(shortLast-longLast) / math.Abs(longLast)
		}
		signals = append(signals, domain.SignalEvent{
			Timestamp: slice.Timestamp(),
			Symbol:    symbol,
			Direction: direction,
			Strength:  strength,
		})
	}
	return signals, nil
}

// ordersFor sizes orders from signals against current holdings: a long
// signal opens a position when flat, a flat signal closes an open one.
func (s *SMACross) ordersFor(signals []domain.SignalEvent, slice domain.Slice, state pipeline.PortfolioState) []domain.OrderEvent {
	var orders []domain.OrderEvent
	for _, sig := range signals {
		bar, ok := slice.Bar(sig.Symbol)
		if !ok {
			continue
		}

		var currentQty float64
		if pos, held := state.Positions[sig.Symbol]; held {
			currentQty = pos.Quantity
		}

		switch {
		case sig.Direction == domain.DirectionLong && currentQty == 0:
			qty := math.Floor(s.exposure * state.Equity / bar.Close)
			if qty > 0 {
				orders = append(orders, domain.OrderEvent{
					Timestamp: sig.Timestamp,
					Symbol:    sig.Symbol,
					Quantity:  qty,
					Side:      domain.SideBuy,
					Type:      domain.OrderTypeMarket,
				})
			}
		case sig.Direction == domain.DirectionFlat && currentQty > 0:
			orders = append(orders, domain.OrderEvent{
				Timestamp: sig.Timestamp,
				Symbol:    sig.Symbol,
				Quantity:  currentQty,
				Side:      domain.SideSell,
				Type:      domain.OrderTypeMarket,
			})
		}
	}
	return orders
}

// OnSecuritiesChanged drops close history for removed symbols.
func (s *SMACross) OnSecuritiesChanged(_, removed []string) {
	for _, symbol := range removed {
		delete(s.closes, symbol)
	}
}
