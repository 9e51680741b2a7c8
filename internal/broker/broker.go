// Package broker provides the simulated execution model for backtests. It
// prices orders against the current market quote, applying configurable
// slippage and commission, without holding any state of its own.
package broker

import (
	"errors"
	"fmt"
	"math"
	"time"

	"backsim/internal/domain"
)

// ErrInvalidPrice is returned when an order is priced against a zero or
// negative market price.
var ErrInvalidPrice = errors.New("broker: market price must be positive")

// CommissionType selects the commission model.
type CommissionType string

const (
	CommissionFixed      CommissionType = "fixed"
	CommissionPercentage CommissionType = "percentage"
)

// Config holds the execution-cost parameters for a simulated broker.
type Config struct {
	CommissionType CommissionType `yaml:"commission_type"`
	// Commission is the flat fee per order for CommissionFixed, or the fee
	// as a percent of notional (1.0 means 1%) for CommissionPercentage.
	Commission float64 `yaml:"commission"`
	// Slippage is the adverse price move applied to execution as a
	// non-negative fraction of the quoted price.
	Slippage float64 `yaml:"slippage"`
}

// Validate checks the config for values that would make execution pricing
// meaningless.
func (c Config) Validate() error {
	if c.Commission < 0 {
		return fmt.Errorf("broker: commission must be non-negative, got %v", c.Commission)
	}
	if c.Slippage < 0 {
		return fmt.Errorf("broker: slippage must be non-negative, got %v", c.Slippage)
	}
	switch c.CommissionType {
	case CommissionFixed, CommissionPercentage, "":
	default:
		return fmt.Errorf("broker: unknown commission type %q", c.CommissionType)
	}
	return nil
}

// CalculateExecution prices an order against the current market price and
// returns the execution price and commission. It is a pure function: it
// never touches ledger state, so one Config can be shared freely across
// concurrent simulation runs.
//
// Slippage is applied adversely: buys execute above the quote, sells below.
func CalculateExecution(order domain.OrderEvent, price float64, cfg Config) (execPrice, commission float64, err error) {
	if price <= 0 {
		return 0, 0, fmt.Errorf("%w: %v for %s", ErrInvalidPrice, price, order.Symbol)
	}

	switch order.Side {
	case domain.SideSell:
		execPrice = price * (1 - cfg.Slippage)
	default:
		execPrice = price * (1 + cfg.Slippage)
	}

	switch cfg.CommissionType {
	case CommissionPercentage:
		commission = math.Abs(order.Quantity*execPrice) * cfg.Commission / 100
	default:
		commission = cfg.Commission
	}

	return execPrice, commission, nil
}

// Fill prices the order and wraps the result in a FillEvent stamped at t.
// The broker is the sole producer of FillEvents in a simulation.
func Fill(order domain.OrderEvent, price float64, t time.Time, cfg Config) (domain.FillEvent, error) {
	execPrice, commission, err := CalculateExecution(order, price, cfg)
	if err != nil {
		return domain.FillEvent{}, err
	}
	return domain.FillEvent{
		Timestamp:  t,
		Symbol:     order.Symbol,
		Quantity:   order.Quantity,
		Side:       order.Side,
		Price:      execPrice,
		Commission: commission,
	}, nil
}
