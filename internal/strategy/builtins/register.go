package builtins

import (
	"backsim/internal/domain"
	"backsim/internal/pipeline"
	"backsim/internal/strategy"
)

// Register adds every built-in strategy factory to the registry.
func Register(r *strategy.Registry) {
	r.Register("sma-cross", New)
	r.Register("equal-weight", NewEqualWeight)
}

// NewEqualWeight builds a pipeline strategy that holds an equal long
// weight in every traded symbol. Parameters: "exposure" (default 1.0),
// "max_drawdown" (default 0, disabled), "min_delta" (default 0.01).
func NewEqualWeight(params strategy.Params) strategy.Strategy {
	var risks []pipeline.RiskModel
	if dd := params.Get("max_drawdown", 0); dd > 0 {
		risks = append(risks, pipeline.NewMaximumDrawdownPercent(dd))
	}
	risks = append(risks, pipeline.NewMaximumLeverage(params.Get("max_leverage", 1)))

	p := pipeline.New(
		pipeline.NewCoarseUniverse(func(domain.Bar) bool { return true }),
		pipeline.NewConstantAlpha(domain.DirectionLong, 1, 1),
		pipeline.NewEqualWeighting(params.Get("exposure", 1)),
		risks,
		pipeline.NewImmediateExecution(params.Get("min_delta", 0.01)),
	)
	return strategy.NewPipelineStrategy("equal-weight", p)
}
