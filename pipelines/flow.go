package pipelines

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Flow runs pipeline steps strictly in the order they were added. Each step
// works on files the previous one produced, so there is no parallelism to
// extract here.
type Flow struct {
	name  string
	steps []*step
}

type step struct {
	name string
	fn   func(context.Context) error
}

// NewFlow creates a new pipeline flow
func NewFlow(name string) *Flow {
	return &Flow{name: name}
}

// AddStep appends a step to the flow
func (f *Flow) AddStep(name string, fn func(context.Context) error) {
	f.steps = append(f.steps, &step{name: name, fn: fn})
}

// Run executes the steps in order, stopping at the first failure or context
// cancellation.
func (f *Flow) Run(ctx context.Context) error {
	logger := zap.L().With(zap.String("pipeline", f.name))
	startTime := time.Now()

	stepNames := make([]string, 0, len(f.steps))
	for _, s := range f.steps {
		stepNames = append(stepNames, s.name)
	}
	logger.Info("pipeline started",
		zap.Int("step_count", len(f.steps)),
		zap.Strings("steps", stepNames))

	for i, s := range f.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		stepStart := time.Now()
		logger.Info("step started", zap.String("step", s.name))

		if err := s.fn(ctx); err != nil {
			logger.Error("step failed",
				zap.String("step", s.name),
				zap.Error(err),
				zap.Duration("duration", time.Since(stepStart)))
			logger.Error("pipeline failed",
				zap.Duration("duration", time.Since(startTime)),
				zap.Int("steps_completed", i))
			return fmt.Errorf("%s: %w", s.name, err)
		}

		logger.Info("step completed",
			zap.String("step", s.name),
			zap.Duration("duration", time.Since(stepStart)))
	}

	logger.Info("pipeline completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("steps_completed", len(f.steps)))
	return nil
}
