// Package domain defines the core data types shared across the backsim
// platform: bars, orders, fills, insights, and positions.
package domain

import "time"

// Bar is a single OHLCV observation for a symbol at a timestamp. Bars are
// produced by the data layer and treated as immutable by every consumer.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// DollarVolume returns the bar's close price times volume, the usual
// liquidity measure for coarse universe filtering.
func (b Bar) DollarVolume() float64 {
	return b.Close * float64(b.Volume)
}

// Side is the side of an order or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign returns +1 for buy and -1 for sell.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderType distinguishes how an order is priced.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// Direction is the directional view carried by a signal or insight.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Position is the current holding in one symbol. Quantity sign encodes
// long (positive) versus short (negative). Positions are owned exclusively
// by the ledger; everyone else sees copies.
type Position struct {
	Symbol      string
	Quantity    float64
	AverageCost float64
}

// MarketValue returns the position's value at the given mark price.
func (p Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}

// EquityPoint is one sample of the portfolio equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}
