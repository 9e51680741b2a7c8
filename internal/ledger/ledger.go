// Package ledger tracks the cash, positions, and history of one simulation
// run. The ledger is pure bookkeeping: it applies whatever fills it is
// given and never enforces trading constraints — margin and short-selling
// policy belong to the risk stage, not here.
package ledger

import (
	"time"

	"backsim/internal/domain"
)

// Ledger owns the mutable state of a single backtest run. Each run gets an
// exclusive instance, so no locking is needed.
type Ledger struct {
	cash        float64
	positions   map[string]*domain.Position
	equityCurve []domain.EquityPoint
	tradeLog    []domain.FillEvent
}

// New creates a Ledger seeded with the given starting cash.
func New(initialCash float64) *Ledger {
	return &Ledger{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// ApplyFill books a fill: cash moves by -signedQty*price - commission, the
// position's quantity is updated, and the fill is appended to the trade
// log. Average cost is recomputed as a quantity-weighted running average
// only when the fill adds in the position's current direction; reducing or
// closing a position leaves the remaining average cost unchanged.
func (l *Ledger) ApplyFill(fill domain.FillEvent) {
	signedQty := fill.SignedQuantity()
	l.cash -= signedQty*fill.Price + fill.Commission

	pos, ok := l.positions[fill.Symbol]
	if !ok {
		pos = &domain.Position{Symbol: fill.Symbol}
		l.positions[fill.Symbol] = pos
	}

	sameDirection := pos.Quantity == 0 || (pos.Quantity > 0) == (signedQty > 0)
	newQty := pos.Quantity + signedQty

	switch {
	case sameDirection:
		prevAbs := absVal(pos.Quantity)
		addAbs := absVal(signedQty)
		pos.AverageCost = (pos.AverageCost*prevAbs + fill.Price*addAbs) / (prevAbs + addAbs)
	case newQty == 0:
		pos.AverageCost = 0
	case (newQty > 0) != (pos.Quantity > 0):
		// Flipped through zero: the residual is a fresh position at the
		// fill price.
		pos.AverageCost = fill.Price
	}
	pos.Quantity = newQty

	if pos.Quantity == 0 {
		delete(l.positions, fill.Symbol)
	}

	l.tradeLog = append(l.tradeLog, fill)
}

// MarkToMarket computes equity as cash plus each open position valued at
// its mark price, appends the sample to the equity curve, and returns it.
// The engine calls this exactly once per simulated timestamp, after all of
// that timestamp's fills are applied, keeping the curve at one point per
// bar.
func (l *Ledger) MarkToMarket(t time.Time, prices map[string]float64) float64 {
	equity := l.cash
	for symbol, pos := range l.positions {
		if price, ok := prices[symbol]; ok {
			equity += pos.MarketValue(price)
		} else {
			// No quote this bar: carry the position at cost.
			equity += pos.MarketValue(pos.AverageCost)
		}
	}
	l.equityCurve = append(l.equityCurve, domain.EquityPoint{Timestamp: t, Equity: equity})
	return equity
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Position returns a copy of the position for symbol; the second return
// reports whether one is open.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns a copy of all open positions keyed by symbol.
func (l *Ledger) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(l.positions))
	for symbol, pos := range l.positions {
		out[symbol] = *pos
	}
	return out
}

// EquityCurve returns a copy of the recorded equity samples in order.
func (l *Ledger) EquityCurve() []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(l.equityCurve))
	copy(out, l.equityCurve)
	return out
}

// TradeLog returns a copy of all fills applied so far, in order.
func (l *Ledger) TradeLog() []domain.FillEvent {
	out := make([]domain.FillEvent, len(l.tradeLog))
	copy(out, l.tradeLog)
	return out
}

func absVal(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
