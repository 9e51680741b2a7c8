package pipeline

import (
	"math"

	"backsim/internal/domain"
)

// ExecutionModel converts final target weights into concrete orders sized
// against current portfolio value and prices.
type ExecutionModel interface {
	Orders(targets map[string]float64, slice domain.Slice, state PortfolioState) []domain.OrderEvent
}

// Compile-time interface check.
var _ ExecutionModel = (*ImmediateExecution)(nil)

// ImmediateExecution emits the full delta between current and target
// holdings as one market order per symbol needing a change.
type ImmediateExecution struct {
	// minDelta suppresses orders whose notional is below this fraction of
	// equity, avoiding churn on rounding noise.
	minDelta float64
}

// NewImmediateExecution creates an execution model that trades the full
// delta immediately. minDeltaFraction of 0 trades every nonzero delta.
func NewImmediateExecution(minDeltaFraction float64) *ImmediateExecution {
	return &ImmediateExecution{minDelta: minDeltaFraction}
}

// Orders emits market orders, iterating symbols in sorted order so the
// output sequence is deterministic.
func (e *ImmediateExecution) Orders(targets map[string]float64, slice domain.Slice, state PortfolioState) []domain.OrderEvent {
	var orders []domain.OrderEvent
	for _, symbol := range sortedKeys(targets) {
		price, ok := state.Prices[symbol]
		if !ok || price <= 0 {
			continue
		}

		var currentQty float64
		if pos, held := state.Positions[symbol]; held {
			currentQty = pos.Quantity
		}

		targetValue := targets[symbol] * state.Equity
		deltaValue := targetValue - currentQty*price
		if math.Abs(deltaValue) < e.minDelta*state.Equity {
			continue
		}

		qty := math.Floor(math.Abs(deltaValue) / price)
		if qty == 0 {
			continue
		}

		side := domain.SideBuy
		if deltaValue < 0 {
			side = domain.SideSell
		}
		orders = append(orders, domain.OrderEvent{
			Timestamp: slice.Timestamp(),
			Symbol:    symbol,
			Quantity:  qty,
			Side:      side,
			Type:      domain.OrderTypeMarket,
		})
	}
	return orders
}
