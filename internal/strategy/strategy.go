// Package strategy defines the Strategy interface consumed by the backtest
// engine and provides a Registry for managing strategy factories.
package strategy

import (
	"context"
	"sort"

	"backsim/internal/domain"
	"backsim/internal/pipeline"
)

// Strategy is the per-run behavior the engine drives through the timeline.
// Implementations may keep internal state between OnData calls; one
// Strategy instance belongs to exactly one run.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs one-time setup before the timeline begins.
	Init(ctx context.Context) error

	// OnData is called once per timestamp with market data visible up to
	// and including that timestamp. It returns zero or more orders.
	OnData(ctx context.Context, slice domain.Slice, state pipeline.PortfolioState) ([]domain.OrderEvent, error)

	// OnSecuritiesChanged is called when universe membership changes,
	// before the next OnData call for that cycle. Strategies without a
	// universe concept may ignore it.
	OnSecuritiesChanged(added, removed []string)
}

// Params carries the tunable knobs a factory needs to construct a
// strategy instance. Walk-forward optimization produces these per window.
type Params map[string]float64

// Get returns the named parameter, or fallback when absent.
func (p Params) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

// Factory builds a fresh Strategy from parameters. Each backtest run must
// get its own instance; instances are never shared across runs.
type Factory func(params Params) Strategy

// Registry holds named strategy factories for lookup and enumeration. It
// is an explicitly constructed object passed to whatever needs it; there
// is no process-wide registry. Register all factories before handing the
// Registry to concurrent readers.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New constructs a fresh instance of the named strategy. The second return
// value indicates whether the strategy is registered.
func (r *Registry) New(name string, params Params) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(params), true
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
