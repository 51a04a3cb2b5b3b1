// Package fanout runs independent operations concurrently and folds their
// failures into a single worst-case error. It is used where a request fans
// out to unrelated backends over one entity and no branch depends on
// another.
package fanout

import (
	"context"
	"sync"

	"github.com/patrongate/patrongate/internal/concurrency"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// Task is one independent branch of a fan-out.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// JoinAll executes every task concurrently and waits for all of them. If
// every task succeeds the results are returned keyed by task name. If any
// fail, the combined error carries the numerically highest HTTP status
// among the failures and the comma-joined messages, in task order.
func JoinAll[T any](ctx context.Context, tasks []Task[T]) (map[string]T, error) {
	results := make(map[string]T, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}
	failures := make([]*serverErrors.EncodedError, len(tasks))
	var mu sync.Mutex

	pool := concurrency.NewDrainingPool(ctx, len(tasks))
	for i, task := range tasks {
		pool.Go(func(taskCtx context.Context) error {
			value, err := task.Run(taskCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = serverErrors.FromError(err)
				return nil
			}
			results[task.Name] = value
			return nil
		})
	}
	_ = pool.Wait()

	failed := make([]*serverErrors.EncodedError, 0, len(tasks))
	for _, f := range failures {
		if f != nil {
			failed = append(failed, f)
		}
	}
	if len(failed) > 0 {
		return nil, serverErrors.Aggregate(failed)
	}
	return results, nil
}
