package pipeline

import "backsim/internal/domain"

// PortfolioConstruction maps one cycle's insights to target portfolio
// weights per symbol. A weight of 0 means flatten; absence means leave the
// symbol untouched by the execution stage — except that insights always
// produce an entry, so flat/short views flatten explicitly.
type PortfolioConstruction interface {
	Targets(insights []domain.Insight) map[string]float64
}

// Compile-time interface checks.
var _ PortfolioConstruction = (*EqualWeighting)(nil)
var _ PortfolioConstruction = (*TargetPercent)(nil)

// EqualWeighting splits a total exposure equally among symbols with a long
// insight; flat and short insights zero the symbol's target.
type EqualWeighting struct {
	totalExposure float64
}

// NewEqualWeighting creates an equal-weighting constructor that allocates
// totalExposure (1.0 = fully invested) across long insights.
func NewEqualWeighting(totalExposure float64) *EqualWeighting {
	return &EqualWeighting{totalExposure: totalExposure}
}

// Targets assigns totalExposure/N to each of the N long insights and 0 to
// everything else.
func (c *EqualWeighting) Targets(insights []domain.Insight) map[string]float64 {
	targets := make(map[string]float64, len(insights))
	longs := 0
	for _, in := range insights {
		if in.Direction == domain.DirectionLong {
			longs++
		}
	}
	for _, in := range insights {
		if in.Direction == domain.DirectionLong {
			targets[in.Symbol] = c.totalExposure / float64(longs)
		} else {
			targets[in.Symbol] = 0
		}
	}
	return targets
}

// TargetPercent uses each insight's explicit weight when set, falling back
// to magnitude with the direction's sign. Short insights produce negative
// weights.
type TargetPercent struct{}

// NewTargetPercent creates a TargetPercent constructor.
func NewTargetPercent() *TargetPercent {
	return &TargetPercent{}
}

// Targets maps each insight to its implied weight.
func (c *TargetPercent) Targets(insights []domain.Insight) map[string]float64 {
	targets := make(map[string]float64, len(insights))
	for _, in := range insights {
		w := in.Weight
		if w == 0 {
			switch in.Direction {
			case domain.DirectionLong:
				w = in.Magnitude
			case domain.DirectionShort:
				w = -in.Magnitude
			}
		}
		targets[in.Symbol] = w
	}
	return targets
}
