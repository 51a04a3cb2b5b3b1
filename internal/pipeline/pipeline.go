// Package pipeline runs ordered, dependent workflow steps sharing one
// mutable context. Unlike the fetch graph, partial results are not
// aggregated but transformed: each step reads what earlier steps stored
// and the first required failure aborts the run.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrongate/patrongate/pkg/logger"
)

// Context is the mutable holder threaded through one pipeline run. It is
// owned exclusively by that run and discarded at the end, so access is
// not synchronized.
type Context struct {
	values map[string]any
}

func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) GetString(key string) string {
	v, _ := c.values[key].(string)
	return v
}

// Step is one transition of a pipeline run.
type Step struct {
	Name string
	Run  func(ctx context.Context, pctx *Context) error

	// BestEffort steps never fail the pipeline; their errors are logged
	// and swallowed. Used for notification sending, where a generated
	// credential must not be wasted because the notifier is down.
	BestEffort bool
}

// Runner executes a named pipeline.
type Runner struct {
	name   string
	steps  []Step
	logger logger.Logger
}

type RunnerOption func(*Runner)

func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

func NewRunner(name string, steps []Step, opts ...RunnerOption) *Runner {
	r := &Runner{
		name:   name,
		steps:  steps,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the steps in order against one fresh pipeline context and
// returns the context on success. The first failing required step aborts
// the run and its error is returned untouched, so typed categories
// survive to the transport layer.
func (r *Runner) Run(ctx context.Context) (*Context, error) {
	pctx := NewContext()
	for _, step := range r.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := step.Run(ctx, pctx)
		if err == nil {
			continue
		}
		if step.BestEffort {
			r.logger.Warn("best-effort pipeline step failed",
				zap.String("pipeline", r.name),
				zap.String("step", step.Name),
				zap.Error(err))
			continue
		}
		r.logger.Debug("pipeline aborted",
			zap.String("pipeline", r.name),
			zap.String("step", step.Name),
			zap.Error(err))
		return nil, err
	}
	return pctx, nil
}
