package domain

import (
	"sort"
	"time"
)

// Slice is the market data visible to a strategy at one timestamp: the
// current bar per symbol plus history up to and including that bar. The
// engine constructs slices so that future data is never reachable from
// one; that is what makes look-ahead structurally impossible rather than a
// runtime check.
type Slice struct {
	timestamp time.Time
	bars      map[string]Bar
	history   map[string][]Bar
}

// NewSlice builds a Slice for timestamp t. bars holds the symbols with a
// bar at t; history holds, per symbol, all bars up to and including t.
func NewSlice(t time.Time, bars map[string]Bar, history map[string][]Bar) Slice {
	return Slice{timestamp: t, bars: bars, history: history}
}

// NewSliceFromEvents builds the Slice for t from the market events
// announced at t. The events define which symbols have a current bar;
// history holds, per symbol, all bars up to and including t.
func NewSliceFromEvents(t time.Time, events []MarketEvent, history map[string][]Bar) Slice {
	bars := make(map[string]Bar, len(events))
	for _, ev := range events {
		bars[ev.Symbol] = ev.Bar
	}
	return NewSlice(t, bars, history)
}

// Timestamp returns the slice's timestamp.
func (s Slice) Timestamp() time.Time {
	return s.timestamp
}

// Bar returns the current bar for symbol, if the symbol traded at this
// timestamp.
func (s Slice) Bar(symbol string) (Bar, bool) {
	b, ok := s.bars[symbol]
	return b, ok
}

// History returns all bars for symbol up to and including the current
// timestamp, oldest first. Callers must treat the result as read-only.
func (s Slice) History(symbol string) []Bar {
	return s.history[symbol]
}

// Closes returns the closing prices of symbol's visible history, oldest
// first.
func (s Slice) Closes(symbol string) []float64 {
	bars := s.history[symbol]
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Symbols returns the symbols with a bar at this timestamp, sorted for
// deterministic iteration.
func (s Slice) Symbols() []string {
	out := make([]string, 0, len(s.bars))
	for symbol := range s.bars {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Prices returns the current close per symbol at this timestamp.
func (s Slice) Prices() map[string]float64 {
	out := make(map[string]float64, len(s.bars))
	for symbol, b := range s.bars {
		out[symbol] = b.Close
	}
	return out
}
