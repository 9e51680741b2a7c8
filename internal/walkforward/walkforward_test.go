package walkforward

import (
	"context"
	"errors"
	"testing"
	"time"

	"backsim/internal/broker"
	"backsim/internal/domain"
	"backsim/internal/engine"
	"backsim/internal/pipeline"
	"backsim/internal/strategy"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func TestWindowsNonOverlapping(t *testing.T) {
	cfg := Config{TrainLen: 60 * day, TestLen: 20 * day}
	windows, err := cfg.Windows(testStart, testStart.Add(200*day))
	if err != nil {
		t.Fatalf("Windows returned error: %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("expected at least one window")
	}

	for i, w := range windows {
		if !w.TestStart.Equal(w.TrainEnd) {
			t.Errorf("window %d: test range does not begin at train end", i)
		}
		if i > 0 {
			prev := windows[i-1]
			if w.TestStart.Before(prev.TestEnd) {
				t.Errorf("window %d test range overlaps window %d", i, i-1)
			}
		}
	}

	// Last test range must not run past the overall end.
	last := windows[len(windows)-1]
	if last.TestEnd.After(testStart.Add(200 * day)) {
		t.Error("last window's test range exceeds the overall range")
	}
}

func TestWindowsCustomStepRejectsOverlap(t *testing.T) {
	cfg := Config{TrainLen: 60 * day, TestLen: 20 * day, Step: 10 * day}
	if _, err := cfg.Windows(testStart, testStart.Add(200*day)); err == nil {
		t.Error("step below test length should be rejected")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{TrainLen: 60 * day, TestLen: 20 * day}, false},
		{"valid with step", Config{TrainLen: 60 * day, TestLen: 20 * day, Step: 30 * day}, false},
		{"zero train", Config{TestLen: 20 * day}, true},
		{"zero test", Config{TrainLen: 60 * day}, true},
		{"negative step", Config{TrainLen: 60 * day, TestLen: 20 * day, Step: -day}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func steadyBars(symbol string, start time.Time, days int) []domain.Bar {
	out := make([]domain.Bar, days)
	px := 100.0
	for i := 0; i < days; i++ {
		out[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * day),
			Open:      px,
			High:      px,
			Low:       px,
			Close:     px,
			Volume:    1000,
		}
		px *= 1.001
	}
	return out
}

func testRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("hold", func(_ strategy.Params) strategy.Strategy {
		p := pipeline.New(
			pipeline.NewManualUniverse([]string{"AAPL"}),
			pipeline.NewConstantAlpha(domain.DirectionLong, 1, 1),
			pipeline.NewEqualWeighting(0.5),
			nil,
			pipeline.NewImmediateExecution(0.01),
		)
		return strategy.NewPipelineStrategy("hold", p)
	})
	return r
}

func testEngineConfig() engine.Config {
	return engine.Config{
		InitialCapital: 100000,
		Broker:         broker.Config{CommissionType: broker.CommissionFixed, Commission: 0},
	}
}

func TestAnalyzerRun(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": steadyBars("AAPL", testStart, 200)}

	a, err := New(Config{TrainLen: 60 * day, TestLen: 30 * day, Workers: 1}, testEngineConfig(), testRegistry(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var optimized int
	optimize := func(_ context.Context, trainBars map[string][]domain.Bar) (strategy.Params, error) {
		optimized++
		// Optimizer must only ever see train-range data.
		for _, bs := range trainBars {
			for i := 1; i < len(bs); i++ {
				if bs[i].Timestamp.Sub(bs[i-1].Timestamp) != day {
					t.Error("train bars not contiguous")
				}
			}
		}
		return strategy.Params{"exposure": 0.5}, nil
	}

	report, err := a.Run(context.Background(), "hold", bars, testStart, testStart.Add(200*day), optimize)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if optimized != len(report.Windows) {
		t.Errorf("optimizer calls = %d, want %d (one per window)", optimized, len(report.Windows))
	}
	if len(report.EquityCurve) == 0 {
		t.Fatal("aggregate equity curve is empty")
	}
	for i := 1; i < len(report.EquityCurve); i++ {
		if report.EquityCurve[i].Timestamp.Before(report.EquityCurve[i-1].Timestamp) {
			t.Fatal("stitched equity curve out of chronological order")
		}
	}
	// Rising market, long strategy: positive out-of-sample return.
	if report.TotalReturn <= 0 {
		t.Errorf("TotalReturn = %v, want > 0", report.TotalReturn)
	}

	// The aggregate return uses the same base as the engine's: initial
	// capital, not the first marked equity point.
	last := report.EquityCurve[len(report.EquityCurve)-1].Equity
	want := last/100000 - 1
	if diff := report.TotalReturn - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("TotalReturn = %v, want %v (final stitched equity over initial capital)", report.TotalReturn, want)
	}
}

func TestAnalyzerOptimizerFailureIsolatedPerWindow(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": steadyBars("AAPL", testStart, 200)}
	a, err := New(Config{TrainLen: 60 * day, TestLen: 30 * day, Workers: 1}, testEngineConfig(), testRegistry(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	call := 0
	optimize := func(_ context.Context, _ map[string][]domain.Bar) (strategy.Params, error) {
		call++
		if call == 2 {
			return nil, errors.New("optimizer diverged")
		}
		return strategy.Params{}, nil
	}

	report, err := a.Run(context.Background(), "hold", bars, testStart, testStart.Add(200*day), optimize)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var failed int
	for _, wr := range report.Windows {
		if wr.Err != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("failed windows = %d, want exactly 1", failed)
	}
	if len(report.EquityCurve) == 0 {
		t.Error("surviving windows should still aggregate")
	}
}

func TestAnalyzerUnknownStrategy(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": steadyBars("AAPL", testStart, 200)}
	a, err := New(Config{TrainLen: 60 * day, TestLen: 30 * day}, testEngineConfig(), testRegistry(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	report, err := a.Run(context.Background(), "nope", bars, testStart, testStart.Add(200*day), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for i, wr := range report.Windows {
		if wr.Err == nil {
			t.Errorf("window %d should fail for unknown strategy", i)
		}
	}
}

func TestSliceBars(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": steadyBars("AAPL", testStart, 10)}
	got := sliceBars(bars, testStart.Add(2*day), testStart.Add(5*day))

	if len(got["AAPL"]) != 3 {
		t.Fatalf("sliced bars = %d, want 3 (half-open range)", len(got["AAPL"]))
	}
	if !got["AAPL"][0].Timestamp.Equal(testStart.Add(2 * day)) {
		t.Error("slice start is not inclusive")
	}
}
