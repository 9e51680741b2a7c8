// Package metric computes closed-form performance statistics over equity
// and return series. All functions are pure and tolerate empty input by
// returning zero.
package metric

import (
	"math"

	"backsim/internal/domain"
)

// TotalReturn is final/initial - 1 over an equity curve.
func TotalReturn(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 || curve[0].Equity == 0 {
		return 0
	}
	return curve[len(curve)-1].Equity/curve[0].Equity - 1
}

// SharpeRatio is the annualized mean/stddev of per-period returns derived
// from the equity curve, assuming periodsPerYear samples per year and a
// zero risk-free rate.
func SharpeRatio(curve []domain.EquityPoint, periodsPerYear float64) float64 {
	returns := equityReturns(curve)
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}

	return mean / math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}

// MaxDrawdown is the largest peak-to-trough equity decline as a positive
// fraction (0.2 means a 20% drawdown).
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, maxDD float64
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			dd := (peak - pt.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// WinRate is the fraction of round trips closed at a profit, judged by
// pairing each sell against the running average cost of prior buys. Fills
// that only open or add to a position do not count as trades here.
func WinRate(trades []domain.FillEvent) float64 {
	wins, total := roundTrips(trades)
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// ProfitFactor is gross profit divided by gross loss over closed round
// trips. Returns 0 with no losing trades and no winners; +Inf when there
// are winners but no losers.
func ProfitFactor(trades []domain.FillEvent) float64 {
	var grossProfit, grossLoss float64
	book := make(map[string]*costBasis)
	for _, f := range trades {
		pnl := closePnL(book, f)
		if pnl > 0 {
			grossProfit += pnl
		} else {
			grossLoss -= pnl
		}
	}
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return grossProfit / grossLoss
}

type costBasis struct {
	qty float64
	avg float64
}

// closePnL books the fill into a running long-only cost basis and returns
// the realized profit for any quantity it closes (0 for opening fills).
func closePnL(book map[string]*costBasis, f domain.FillEvent) float64 {
	cb, ok := book[f.Symbol]
	if !ok {
		cb = &costBasis{}
		book[f.Symbol] = cb
	}

	signed := f.SignedQuantity()
	if cb.qty == 0 || (cb.qty > 0) == (signed > 0) {
		total := math.Abs(cb.qty) + math.Abs(signed)
		cb.avg = (cb.avg*math.Abs(cb.qty) + f.Price*math.Abs(signed)) / total
		cb.qty += signed
		return 0
	}

	closed := math.Min(math.Abs(signed), math.Abs(cb.qty))
	direction := 1.0
	if cb.qty < 0 {
		direction = -1
	}
	pnl := direction * closed * (f.Price - cb.avg)

	cb.qty += signed
	if cb.qty == 0 {
		cb.avg = 0
	} else if (cb.qty > 0) == (signed > 0) {
		cb.avg = f.Price
	}
	return pnl - f.Commission
}

func roundTrips(trades []domain.FillEvent) (wins, total int) {
	book := make(map[string]*costBasis)
	for _, f := range trades {
		before := book[f.Symbol]
		closing := before != nil && before.qty != 0 && (before.qty > 0) != (f.SignedQuantity() > 0)
		pnl := closePnL(book, f)
		if closing {
			total++
			if pnl > 0 {
				wins++
			}
		}
	}
	return wins, total
}

func equityReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].Equity == 0 {
			continue
		}
		out = append(out, curve[i].Equity/curve[i-1].Equity-1)
	}
	return out
}
