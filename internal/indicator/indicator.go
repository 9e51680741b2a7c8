// Package indicator provides stateless windowed transforms over numeric
// series. Every function is pure: same input, same output. Outputs are
// NaN-padded where the window has not yet filled.
package indicator

import (
	"fmt"
	"math"
)

// ErrWindow reports a non-positive window size.
func errWindow(window int) error {
	return fmt.Errorf("indicator: window must be positive, got %d", window)
}

// SMA returns the simple moving average of values over the given window.
// The first window-1 entries are NaN.
func SMA(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, errWindow(window)
	}

	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// EMA returns the exponential moving average with smoothing 2/(window+1),
// seeded with the SMA of the first window values. The first window-1
// entries are NaN.
func EMA(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, errWindow(window)
	}

	out := make([]float64, len(values))
	alpha := 2 / float64(window+1)
	var seed float64
	for i, v := range values {
		switch {
		case i < window-1:
			seed += v
			out[i] = math.NaN()
		case i == window-1:
			seed += v
			out[i] = seed / float64(window)
		default:
			out[i] = alpha*v + (1-alpha)*out[i-1]
		}
	}
	return out, nil
}

// RollingMax returns the maximum of the trailing window at each index,
// NaN-padded.
func RollingMax(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, errWindow(window)
	}

	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		max := values[i-window+1]
		for _, v := range values[i-window+2 : i+1] {
			if v > max {
				max = v
			}
		}
		out[i] = max
	}
	return out, nil
}

// Returns converts a price series into simple period-over-period returns.
// The result has len(prices)-1 entries; an empty or single-element input
// yields nil.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out[i-1] = math.NaN()
			continue
		}
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}
