package domain

import "time"

// Events are the vocabulary the simulator components pass between each
// other. All events are immutable once constructed: the engine is the sole
// producer of MarketEvents, the strategy/pipeline of OrderEvents, and the
// broker of FillEvents.

// MarketEvent announces a new bar for a symbol.
type MarketEvent struct {
	Timestamp time.Time
	Symbol    string
	Bar       Bar
}

// NewMarketEvent announces bar as the current observation for its symbol.
func NewMarketEvent(bar Bar) MarketEvent {
	return MarketEvent{Timestamp: bar.Timestamp, Symbol: bar.Symbol, Bar: bar}
}

// SignalEvent is a directional trading signal emitted by a strategy.
type SignalEvent struct {
	Timestamp time.Time
	Symbol    string
	Direction Direction
	Strength  float64
}

// OrderEvent is a request to trade. Quantity is always positive; Side
// carries the direction.
type OrderEvent struct {
	Timestamp  time.Time
	Symbol     string
	Quantity   float64
	Side       Side
	Type       OrderType
	LimitPrice float64 // limit orders only
	StopPrice  float64 // stop orders only
}

// SignedQuantity returns the order quantity with buy positive and sell
// negative.
func (o OrderEvent) SignedQuantity() float64 {
	return o.Side.Sign() * o.Quantity
}

// FillEvent is the realized outcome of an executed order.
type FillEvent struct {
	Timestamp  time.Time
	Symbol     string
	Quantity   float64
	Side       Side
	Price      float64
	Commission float64
}

// SignedQuantity returns the fill quantity with buy positive and sell
// negative.
func (f FillEvent) SignedQuantity() float64 {
	return f.Side.Sign() * f.Quantity
}

// Insight is a directional view produced by an alpha model for one cycle.
// It lives for exactly one pipeline cycle: portfolio construction consumes
// it and nothing persists it.
type Insight struct {
	Symbol      string
	Direction   Direction
	Magnitude   float64 // [0, 1]
	Confidence  float64 // [0, 1]
	SourceModel string
	Weight      float64 // optional explicit target weight
}

// NewInsight constructs an Insight, clamping magnitude and confidence into
// [0, 1]. Out-of-range input is normalized rather than rejected.
func NewInsight(symbol string, direction Direction, magnitude, confidence float64, source string) Insight {
	return Insight{
		Symbol:      symbol,
		Direction:   direction,
		Magnitude:   clamp01(magnitude),
		Confidence:  clamp01(confidence),
		SourceModel: source,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
