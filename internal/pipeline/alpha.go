package pipeline

import (
	"math"

	"backsim/internal/domain"
	"backsim/internal/indicator"
)

// AlphaModel turns the current universe's market data into insights.
// Implementations that keep per-symbol state must evict it for removed
// symbols in OnSecuritiesChanged.
type AlphaModel interface {
	// Update is called once per cycle with data restricted to the current
	// universe and returns zero or more insights for this cycle only.
	Update(slice domain.Slice, universe []string) []domain.Insight

	// OnSecuritiesChanged is called before Update whenever universe
	// membership changes.
	OnSecuritiesChanged(added, removed []string)
}

// Compile-time interface checks.
var _ AlphaModel = (*SMACrossAlpha)(nil)
var _ AlphaModel = (*ConstantAlpha)(nil)

// SMACrossAlpha emits a long insight while the short SMA of closes is
// above the long SMA, and a flat insight while below. Price history is
// kept in an explicit per-symbol arena so its lifetime is tied to universe
// membership.
type SMACrossAlpha struct {
	shortWindow int
	longWindow  int
	closes      map[string][]float64
}

// NewSMACrossAlpha creates an SMA crossover alpha with the given windows.
func NewSMACrossAlpha(shortWindow, longWindow int) *SMACrossAlpha {
	return &SMACrossAlpha{
		shortWindow: shortWindow,
		longWindow:  longWindow,
		closes:      make(map[string][]float64),
	}
}

// Update appends the current close for every universe symbol and emits an
// insight per symbol with enough history.
func (a *SMACrossAlpha) Update(slice domain.Slice, universe []string) []domain.Insight {
	var insights []domain.Insight
	for _, symbol := range universe {
		bar, ok := slice.Bar(symbol)
		if !ok {
			continue
		}
		a.closes[symbol] = append(a.closes[symbol], bar.Close)

		closes := a.closes[symbol]
		if len(closes) < a.longWindow {
			continue
		}

		short, err := indicator.SMA(closes, a.shortWindow)
		if err != nil {
			continue
		}
		long, err := indicator.SMA(closes, a.longWindow)
		if err != nil {
			continue
		}

		s, l := short[len(short)-1], long[len(long)-1]
		if math.IsNaN(s) || math.IsNaN(l) || l == 0 {
			continue
		}

		spread := math.Abs(s-l) / l
		if s > l {
			insights = append(insights, domain.NewInsight(symbol, domain.DirectionLong, spread*10, 0.5+spread, "sma-cross"))
		} else {
			insights = append(insights, domain.NewInsight(symbol, domain.DirectionFlat, 0, 0.5, "sma-cross"))
		}
	}
	return insights
}

// OnSecuritiesChanged drops accumulated history for removed symbols so a
// re-entering symbol starts clean.
func (a *SMACrossAlpha) OnSecuritiesChanged(_, removed []string) {
	for _, symbol := range removed {
		delete(a.closes, symbol)
	}
}

// ConstantAlpha emits the same insight for every universe symbol each
// cycle. Useful for buy-and-hold baselines and tests.
type ConstantAlpha struct {
	direction  domain.Direction
	magnitude  float64
	confidence float64
}

// NewConstantAlpha creates an alpha that always emits the given view.
func NewConstantAlpha(direction domain.Direction, magnitude, confidence float64) *ConstantAlpha {
	return &ConstantAlpha{direction: direction, magnitude: magnitude, confidence: confidence}
}

// Update emits one insight per universe symbol.
func (a *ConstantAlpha) Update(_ domain.Slice, universe []string) []domain.Insight {
	out := make([]domain.Insight, 0, len(universe))
	for _, symbol := range universe {
		out = append(out, domain.NewInsight(symbol, a.direction, a.magnitude, a.confidence, "constant"))
	}
	return out
}

// OnSecuritiesChanged is a no-op; ConstantAlpha keeps no per-symbol state.
func (a *ConstantAlpha) OnSecuritiesChanged(_, _ []string) {}
