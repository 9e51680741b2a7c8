package pipeline

import (
	"math"

	"backsim/internal/domain"
)

// RiskModel takes proposed target weights and may scale them down or veto
// them. Models compose sequentially; the pipeline guarantees a model can
// only reduce a target's magnitude, never enlarge it.
type RiskModel interface {
	Adjust(targets map[string]float64, state PortfolioState) map[string]float64
}

// Compile-time interface checks.
var _ RiskModel = (*MaximumDrawdownPercent)(nil)
var _ RiskModel = (*MaximumLeverage)(nil)
var _ RiskModel = (*StopLoss)(nil)

// MaximumDrawdownPercent flattens every target once trailing drawdown from
// the equity peak breaches the threshold. The peak is tracked across
// cycles inside the model.
type MaximumDrawdownPercent struct {
	threshold float64 // e.g. 0.2 for 20%
	peak      float64
}

// NewMaximumDrawdownPercent creates a drawdown guard with the given
// threshold fraction.
func NewMaximumDrawdownPercent(threshold float64) *MaximumDrawdownPercent {
	return &MaximumDrawdownPercent{threshold: threshold}
}

// Adjust zeroes all targets while the portfolio is below its trailing peak
// by more than the threshold.
func (m *MaximumDrawdownPercent) Adjust(targets map[string]float64, state PortfolioState) map[string]float64 {
	if state.Equity > m.peak {
		m.peak = state.Equity
	}
	if m.peak <= 0 {
		return targets
	}
	drawdown := (m.peak - state.Equity) / m.peak
	if drawdown <= m.threshold {
		return targets
	}

	out := make(map[string]float64, len(targets))
	for symbol := range targets {
		out[symbol] = 0
	}
	// Also force open positions closed, not just vetoed new exposure.
	for symbol := range state.Positions {
		out[symbol] = 0
	}
	return out
}

// MaximumLeverage caps gross exposure: if the sum of absolute target
// weights exceeds the cap, every target is scaled down proportionally.
type MaximumLeverage struct {
	max float64
}

// NewMaximumLeverage creates a gross-exposure cap (1.0 = unlevered).
func NewMaximumLeverage(max float64) *MaximumLeverage {
	return &MaximumLeverage{max: max}
}

// Adjust rescales targets so gross exposure does not exceed the cap.
func (m *MaximumLeverage) Adjust(targets map[string]float64, _ PortfolioState) map[string]float64 {
	var gross float64
	for _, w := range targets {
		gross += math.Abs(w)
	}
	if gross <= m.max || gross == 0 {
		return targets
	}

	scale := m.max / gross
	out := make(map[string]float64, len(targets))
	for symbol, w := range targets {
		out[symbol] = w * scale
	}
	return out
}

// StopLoss forces an exit once an open position's loss against its average
// cost exceeds the threshold fraction.
type StopLoss struct {
	threshold float64 // e.g. 0.05 for a 5% stop
}

// NewStopLoss creates a per-position stop at the given loss fraction.
func NewStopLoss(threshold float64) *StopLoss {
	return &StopLoss{threshold: threshold}
}

// Adjust zeroes the target of any position trading beyond its stop.
func (s *StopLoss) Adjust(targets map[string]float64, state PortfolioState) map[string]float64 {
	stopped := make(map[string]bool)
	for symbol, pos := range state.Positions {
		price, ok := state.Prices[symbol]
		if !ok || pos.AverageCost == 0 || pos.Quantity == 0 {
			continue
		}
		var loss float64
		if pos.Quantity > 0 {
			loss = (pos.AverageCost - price) / pos.AverageCost
		} else {
			loss = (price - pos.AverageCost) / pos.AverageCost
		}
		if loss > s.threshold {
			stopped[symbol] = true
		}
	}
	if len(stopped) == 0 {
		return targets
	}

	out := make(map[string]float64, len(targets)+len(stopped))
	for symbol, w := range targets {
		out[symbol] = w
	}
	for symbol := range stopped {
		out[symbol] = 0
	}
	return out
}

// MarketValueOf is a helper for risk models needing a position's current
// value with a fallback to cost when no quote is available.
func MarketValueOf(pos domain.Position, prices map[string]float64) float64 {
	if price, ok := prices[pos.Symbol]; ok {
		return pos.MarketValue(price)
	}
	return pos.MarketValue(pos.AverageCost)
}
