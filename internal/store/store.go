// Package store defines storage interfaces for historical bar data and
// backtest run records, with Parquet and SQLite implementations.
package store

import (
	"context"
	"time"

	"backsim/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data. The simulator core
// treats it as read-only and already-cleaned.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in storage.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is the persisted summary of one backtest run.
type RunRecord struct {
	ID          int64
	Strategy    string
	StartedAt   time.Time
	RangeStart  time.Time
	RangeEnd    time.Time
	FinalEquity float64
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	NumTrades   int
}

// ParamRecord is one optimized parameter value from a walk-forward
// window.
type ParamRecord struct {
	RunID      int64
	WindowIdx  int
	TrainStart time.Time
	TrainEnd   time.Time
	Name       string
	Value      float64
}

// RunStore persists backtest run summaries and walk-forward parameters.
type RunStore interface {
	// SaveRun inserts a run summary and returns its assigned ID.
	SaveRun(ctx context.Context, run *RunRecord) (int64, error)

	// GetRun retrieves a run summary by ID.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs for a strategy, newest first,
	// up to limit. An empty strategy matches all.
	ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error)

	// SaveParams inserts the optimized parameters of one walk-forward
	// window.
	SaveParams(ctx context.Context, params []ParamRecord) error

	// ListParams returns all parameters recorded for a run, in window
	// order.
	ListParams(ctx context.Context, runID int64) ([]ParamRecord, error)
}
