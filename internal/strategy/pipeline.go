package strategy

import (
	"context"

	"backsim/internal/domain"
	"backsim/internal/pipeline"
)

// Compile-time interface check.
var _ Strategy = (*PipelineStrategy)(nil)

// PipelineStrategy adapts a five-stage algorithm pipeline to the Strategy
// interface, so pipeline-based algorithms and hand-written strategies run
// through the same engine.
type PipelineStrategy struct {
	name string
	p    *pipeline.Pipeline
}

// NewPipelineStrategy wraps the given pipeline under the given name.
func NewPipelineStrategy(name string, p *pipeline.Pipeline) *PipelineStrategy {
	return &PipelineStrategy{name: name, p: p}
}

// Name returns the configured name.
func (s *PipelineStrategy) Name() string {
	return s.name
}

// Init performs no setup; the pipeline's stages are ready on construction.
func (s *PipelineStrategy) Init(_ context.Context) error {
	return nil
}

// OnData runs one pipeline cycle and returns its orders.
func (s *PipelineStrategy) OnData(_ context.Context, slice domain.Slice, state pipeline.PortfolioState) ([]domain.OrderEvent, error) {
	return s.p.OnBar(slice, state), nil
}

// OnSecuritiesChanged is a no-op: the pipeline runs its own universe stage
// and dispatches membership changes to its alpha model internally.
func (s *PipelineStrategy) OnSecuritiesChanged(_, _ []string) {}
