// Package concurrency wraps the conc pool with the two scheduling modes
// the composition engine needs.
package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a pool where each task respects context cancellation.
// Wait() returns only the first error seen; later errors are dropped.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// NewDrainingPool returns a pool whose tasks keep running after a sibling
// fails. The fetch graph and the fan-out combinator let in-flight backend
// calls drain instead of cancelling them; their results are discarded by
// the caller once a failure has been recorded.
func NewDrainingPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// TrySendThroughChannel attempts to send msg through ch unless the context
// has been cancelled.
func TrySendThroughChannel[T any](ctx context.Context, msg T, ch chan<- T) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case ch <- msg:
		return true
	}
}
