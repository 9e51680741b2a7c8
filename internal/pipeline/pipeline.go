// Package pipeline implements the five-stage algorithm framework: universe
// selection, alpha generation, portfolio construction, risk management,
// and execution. A Pipeline turns one bar of market data into zero or more
// orders; an empty order set is the normal outcome of most cycles.
package pipeline

import (
	"math"
	"sort"

	"backsim/internal/domain"
)

// PortfolioState is the read-only snapshot of ledger state handed to the
// risk and execution stages each cycle.
type PortfolioState struct {
	Cash      float64
	Equity    float64
	Positions map[string]domain.Position
	Prices    map[string]float64
}

// Pipeline composes the five stages. Given identical market data, universe,
// and prior internal state, a Pipeline produces an identical ordered
// sequence of orders; walk-forward reproducibility depends on that.
type Pipeline struct {
	universe     UniverseSelection
	alpha        AlphaModel
	construction PortfolioConstruction
	risks        []RiskModel
	execution    ExecutionModel

	prevUniverse []string
}

// New wires the five stages together. Risk models apply sequentially in
// the order given; each may shrink a target but never enlarge it, so the
// most restrictive model wins per symbol.
func New(
	universe UniverseSelection,
	alpha AlphaModel,
	construction PortfolioConstruction,
	risks []RiskModel,
	execution ExecutionModel,
) *Pipeline {
	return &Pipeline{
		universe:     universe,
		alpha:        alpha,
		construction: construction,
		risks:        risks,
		execution:    execution,
	}
}

// OnBar runs one full cycle over the given data slice and portfolio state
// and returns the orders to submit, sorted by symbol.
func (p *Pipeline) OnBar(slice domain.Slice, state PortfolioState) []domain.OrderEvent {
	universe := p.universe.Select(slice)
	sort.Strings(universe)

	added, removed := diffUniverse(p.prevUniverse, universe)
	if len(added) > 0 || len(removed) > 0 {
		// The alpha model must drop per-symbol state for removed symbols
		// before this cycle's update, or stale history leaks into future
		// insights if the symbol re-enters.
		p.alpha.OnSecuritiesChanged(added, removed)
	}
	p.prevUniverse = universe

	insights := p.alpha.Update(slice, universe)
	targets := p.construction.Targets(insights)

	for _, rm := range p.risks {
		adjusted := rm.Adjust(targets, state)
		targets = restrictTargets(targets, adjusted)
	}

	return p.execution.Orders(targets, slice, state)
}

// diffUniverse returns the symbols entering and leaving between two sorted
// universes.
func diffUniverse(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]bool, len(prev))
	for _, s := range prev {
		prevSet[s] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, s := range next {
		nextSet[s] = true
		if !prevSet[s] {
			added = append(added, s)
		}
	}
	for _, s := range prev {
		if !nextSet[s] {
			removed = append(removed, s)
		}
	}
	return added, removed
}

// restrictTargets merges a risk model's output with its input so that the
// model can only reduce exposure: per symbol the smaller absolute weight
// wins, taking the adjusted sign.
func restrictTargets(before, after map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(before))
	for symbol, prev := range before {
		adj, ok := after[symbol]
		if !ok {
			// Dropped by the risk model: treat as flattened.
			out[symbol] = 0
			continue
		}
		if math.Abs(adj) < math.Abs(prev) {
			out[symbol] = adj
		} else {
			out[symbol] = prev
		}
	}
	// A model may introduce a flatten instruction for a position that had
	// no target this cycle (stop loss, drawdown guard). Flattening is
	// always restrictive, so carry those through.
	for symbol, adj := range after {
		if _, seen := before[symbol]; !seen && adj == 0 {
			out[symbol] = 0
		}
	}
	return out
}

// sortedKeys returns the map's keys in sorted order. Every stage iterates
// targets through this to keep order emission deterministic.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
