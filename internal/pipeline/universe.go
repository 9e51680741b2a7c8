package pipeline

import "backsim/internal/domain"

// UniverseSelection decides which symbols are eligible for trading in the
// current cycle.
type UniverseSelection interface {
	Select(slice domain.Slice) []string
}

// Compile-time interface checks.
var _ UniverseSelection = (*ManualUniverse)(nil)
var _ UniverseSelection = (*CoarseUniverse)(nil)

// ManualUniverse is a fixed, static symbol set.
type ManualUniverse struct {
	symbols []string
}

// NewManualUniverse creates a universe that always selects the given
// symbols, restricted to those with data in the current slice.
func NewManualUniverse(symbols []string) *ManualUniverse {
	out := make([]string, len(symbols))
	copy(out, symbols)
	return &ManualUniverse{symbols: out}
}

// Select returns the configured symbols that have a bar this cycle.
func (u *ManualUniverse) Select(slice domain.Slice) []string {
	var out []string
	for _, symbol := range u.symbols {
		if _, ok := slice.Bar(symbol); ok {
			out = append(out, symbol)
		}
	}
	return out
}

// CoarseUniverse filters the slice's symbols by a predicate over bar data,
// e.g. a minimum dollar volume.
type CoarseUniverse struct {
	predicate func(domain.Bar) bool
}

// NewCoarseUniverse creates a predicate-driven universe.
func NewCoarseUniverse(predicate func(domain.Bar) bool) *CoarseUniverse {
	return &CoarseUniverse{predicate: predicate}
}

// NewDollarVolumeUniverse selects symbols whose current bar trades at
// least minDollarVolume of notional.
func NewDollarVolumeUniverse(minDollarVolume float64) *CoarseUniverse {
	return NewCoarseUniverse(func(b domain.Bar) bool {
		return b.DollarVolume() >= minDollarVolume
	})
}

// Select returns the slice's symbols whose current bar passes the
// predicate.
func (u *CoarseUniverse) Select(slice domain.Slice) []string {
	var out []string
	for _, symbol := range slice.Symbols() {
		bar, _ := slice.Bar(symbol)
		if u.predicate(bar) {
			out = append(out, symbol)
		}
	}
	return out
}
