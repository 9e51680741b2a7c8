package builtins

import (
	"context"
	"testing"
	"time"

	"backsim/internal/domain"
	"backsim/internal/pipeline"
	"backsim/internal/strategy"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func barSlice(t time.Time, symbol string, close float64) domain.Slice {
	bar := domain.Bar{
		Symbol:    symbol,
		Timestamp: t,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1000,
	}
	return domain.NewSliceFromEvents(t, []domain.MarketEvent{domain.NewMarketEvent(bar)}, map[string][]domain.Bar{symbol: {bar}})
}

func flatState(equity float64) pipeline.PortfolioState {
	return pipeline.PortfolioState{
		Cash:      equity,
		Equity:    equity,
		Positions: map[string]domain.Position{},
		Prices:    map[string]float64{},
	}
}

func TestSMACrossSignals(t *testing.T) {
	s := New(strategy.Params{"short": 2, "long": 3}).(*SMACross)

	// Rising closes: after three bars the short SMA sits above the long.
	var signals []domain.SignalEvent
	for i, close := range []float64{100, 102, 104} {
		var err error
		signals, err = s.evaluate(barSlice(testStart.AddDate(0, 0, i), "AAPL", close))
		if err != nil {
			t.Fatalf("evaluate returned error: %v", err)
		}
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(signals))
	}
	if signals[0].Direction != domain.DirectionLong {
		t.Errorf("Direction = %q, want long", signals[0].Direction)
	}
	if signals[0].Symbol != "AAPL" || signals[0].Strength <= 0 {
		t.Errorf("signal = %+v, want AAPL with positive strength", signals[0])
	}

	// Falling closes pull the short SMA back below the long.
	for i, close := range []float64{90, 80} {
		var err error
		signals, err = s.evaluate(barSlice(testStart.AddDate(0, 0, 3+i), "AAPL", close))
		if err != nil {
			t.Fatalf("evaluate returned error: %v", err)
		}
	}
	if len(signals) != 1 || signals[0].Direction != domain.DirectionFlat {
		t.Fatalf("signals = %+v, want one flat signal", signals)
	}
}

func TestSMACrossTradeCycle(t *testing.T) {
	s := New(strategy.Params{"short": 2, "long": 3, "exposure": 0.5})
	ctx := context.Background()

	// Warm up below the long period: no orders possible.
	for i, close := range []float64{100, 102} {
		orders, err := s.OnData(ctx, barSlice(testStart.AddDate(0, 0, i), "AAPL", close), flatState(100000))
		if err != nil {
			t.Fatalf("OnData returned error: %v", err)
		}
		if len(orders) != 0 {
			t.Fatalf("orders during warmup = %v, want none", orders)
		}
	}

	// Cross above while flat: buy floor(0.5 * 100000 / 104) = 480.
	orders, err := s.OnData(ctx, barSlice(testStart.AddDate(0, 0, 2), "AAPL", 104), flatState(100000))
	if err != nil {
		t.Fatalf("OnData returned error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].Side != domain.SideBuy || orders[0].Quantity != 480 {
		t.Errorf("order = %+v, want buy 480", orders[0])
	}

	// Cross below while long: sell the whole position.
	held := pipeline.PortfolioState{
		Cash:   50080,
		Equity: 100000,
		Positions: map[string]domain.Position{
			"AAPL": {Symbol: "AAPL", Quantity: 480, AverageCost: 104},
		},
		Prices: map[string]float64{"AAPL": 104},
	}
	for i, close := range []float64{90, 80} {
		orders, err = s.OnData(ctx, barSlice(testStart.AddDate(0, 0, 3+i), "AAPL", close), held)
		if err != nil {
			t.Fatalf("OnData returned error: %v", err)
		}
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].Side != domain.SideSell || orders[0].Quantity != 480 {
		t.Errorf("order = %+v, want sell 480", orders[0])
	}
}

func TestSMACrossEvictsRemovedSymbols(t *testing.T) {
	s := New(strategy.Params{"short": 2, "long": 3}).(*SMACross)

	if _, err := s.evaluate(barSlice(testStart, "AAPL", 100)); err != nil {
		t.Fatalf("evaluate returned error: %v", err)
	}
	if len(s.closes["AAPL"]) != 1 {
		t.Fatal("close history not recorded")
	}

	s.OnSecuritiesChanged(nil, []string{"AAPL"})
	if _, kept := s.closes["AAPL"]; kept {
		t.Error("close history survived symbol removal")
	}
}
