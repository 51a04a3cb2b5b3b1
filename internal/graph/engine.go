// Package graph schedules a dependency graph of backend fetches. Later
// fetches are parametrized by fields extracted from earlier results; a
// failing fetch blocks its dependents without producing more than one
// client-visible error.
package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/patrongate/patrongate/internal/concurrency"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// Task is one scheduled backend call within a dependency graph. Tasks are
// built per request and consumed once.
type Task struct {
	// ID keys the task's result, e.g. "credentials".
	ID string

	// Method defaults to GET.
	Method string

	// PathTemplate may contain {expr} placeholders resolved against the
	// dependency's response body, where expr is a gjson path such as
	// "users.0.patronGroup".
	PathTemplate string

	// DependsOn names the task whose result parametrizes this one. Empty
	// for root tasks.
	DependsOn string

	// BuildPath, when set, replaces template substitution entirely. It
	// receives the dependency result (nil for root tasks) and returns the
	// path to fetch, or ok=false to skip the task.
	BuildPath func(dep *Result) (path string, ok bool)

	// BuildBody optionally produces a request body from the dependency
	// result.
	BuildBody func(dep *Result) ([]byte, error)

	Policy Policy
}

// State describes how a task finished.
type State int

const (
	// Completed means the fetch was issued and an envelope (possibly an
	// error envelope) came back.
	Completed State = iota

	// Skipped means the fetch was never issued because its dependency
	// failed under a stopping policy or produced no value to substitute.
	Skipped
)

// Result is the completed slot for one task.
type Result struct {
	Task     *Task
	State    State
	Envelope *gateway.Envelope
	Err      *serverErrors.EncodedError
}

// Failed reports whether the task finished unusable for dependents.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Engine executes fetch task graphs against a gateway client.
type Engine struct {
	client gateway.Client
	logger logger.Logger
}

type EngineOption func(*Engine)

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

func NewEngine(client gateway.Client, opts ...EngineOption) *Engine {
	e := &Engine{
		client: client,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Run executes all tasks concurrently subject to their dependency edges
// and returns a map from task ID to completed result. When any task fails
// the first recorded failure is returned and the result map is nil; all
// in-flight fetches are allowed to drain first.
func (e *Engine) Run(ctx context.Context, conn *gateway.ConnectionContext, tasks []*Task) (map[string]*Result, error) {
	if len(tasks) == 0 {
		return map[string]*Result{}, nil
	}
	if err := validate(tasks); err != nil {
		return nil, err
	}

	failure := &FailureState{}
	results := make(map[string]*Result, len(tasks))
	var resultsMu sync.Mutex
	setResult := func(id string, r *Result) {
		resultsMu.Lock()
		results[id] = r
		resultsMu.Unlock()
	}
	getResult := func(id string) *Result {
		resultsMu.Lock()
		defer resultsMu.Unlock()
		return results[id]
	}

	done := make(map[string]chan struct{}, len(tasks))
	for _, task := range tasks {
		done[task.ID] = make(chan struct{})
	}

	// Pool size matches the task count so a dependent waiting on its
	// dependency can never starve the dependency of a worker slot.
	pool := concurrency.NewDrainingPool(ctx, len(tasks))

	for _, task := range tasks {
		pool.Go(func(taskCtx context.Context) error {
			defer close(done[task.ID])

			var dep *Result
			if task.DependsOn != "" {
				select {
				case <-taskCtx.Done():
					setResult(task.ID, &Result{Task: task, State: Skipped})
					return nil
				case <-done[task.DependsOn]:
					dep = getResult(task.DependsOn)
				}
				if dep == nil || dep.State == Skipped || (dep.Failed() && dep.Task.Policy.StopDependents) {
					setResult(task.ID, &Result{Task: task, State: Skipped})
					return nil
				}
			}

			setResult(task.ID, e.execute(taskCtx, conn, task, dep, failure))
			return nil
		})
	}

	_ = pool.Wait()

	if failure.Failed() {
		return nil, failure.Err()
	}
	return results, nil
}

// execute issues one fetch and applies the task's policy. Failures are
// recorded on the shared failure state with first-writer-wins semantics.
func (e *Engine) execute(ctx context.Context, conn *gateway.ConnectionContext, task *Task, dep *Result, failure *FailureState) *Result {
	path, ok := e.resolvePath(task, dep)
	if !ok {
		// Nothing to substitute. A required fetch with no input behaves
		// like a fetch that found nothing.
		res := &Result{Task: task, State: Skipped}
		if task.Policy.Cardinality != OptionalMany {
			res.Err = serverErrors.NotFound(task.PathTemplate)
			failure.TrySet(res.Err)
		}
		return res
	}

	var body []byte
	if task.BuildBody != nil {
		b, err := task.BuildBody(dep)
		if err != nil {
			res := &Result{Task: task, State: Completed, Err: serverErrors.Internal("", err)}
			failure.TrySet(res.Err)
			return res
		}
		body = b
	}

	method := task.Method
	if method == "" {
		method = http.MethodGet
	}

	env, err := e.client.Execute(ctx, method, path, conn, body)
	if err != nil {
		encoded := serverErrors.Transport(err, path)
		e.logger.Error("fetch task transport failure",
			zap.String("task", task.ID),
			zap.String("path", path),
			zap.Error(err))
		failure.TrySet(encoded)
		return &Result{Task: task, State: Completed, Err: encoded}
	}

	if violation := task.Policy.Evaluate(env); violation != nil {
		e.logger.Debug("fetch task policy violation",
			zap.String("task", task.ID),
			zap.String("path", path),
			zap.Int("status", violation.HTTPStatus()))
		failure.TrySet(violation)
		return &Result{Task: task, State: Completed, Envelope: env, Err: violation}
	}

	return &Result{Task: task, State: Completed, Envelope: env}
}

// resolvePath computes the concrete path for a task. ok=false means the
// task has nothing to fetch.
func (e *Engine) resolvePath(task *Task, dep *Result) (string, bool) {
	if task.BuildPath != nil {
		return task.BuildPath(dep)
	}

	if !placeholderPattern.MatchString(task.PathTemplate) {
		return task.PathTemplate, true
	}

	if dep == nil || dep.Envelope == nil {
		return "", false
	}

	missing := false
	path := placeholderPattern.ReplaceAllStringFunc(task.PathTemplate, func(m string) string {
		expr := m[1 : len(m)-1]
		r := dep.Envelope.Get(expr)
		if !r.Exists() || r.String() == "" {
			missing = true
			return ""
		}
		return url.PathEscape(r.String())
	})
	if missing {
		return "", false
	}
	return path, true
}

func validate(tasks []*Task) *serverErrors.EncodedError {
	ids := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if _, dup := ids[task.ID]; dup {
			return serverErrors.Internal("", fmt.Errorf("duplicate task id %q", task.ID))
		}
		ids[task.ID] = struct{}{}
	}
	for _, task := range tasks {
		if task.DependsOn == "" {
			continue
		}
		if _, ok := ids[task.DependsOn]; !ok {
			return serverErrors.Internal("", fmt.Errorf("task %q depends on unknown task %q", task.ID, task.DependsOn))
		}
	}
	// Walk each dependency chain; a chain longer than the task count can
	// only mean a cycle.
	byID := make(map[string]*Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for _, task := range tasks {
		steps := 0
		for cur := task; cur.DependsOn != ""; cur = byID[cur.DependsOn] {
			steps++
			if steps > len(tasks) {
				return serverErrors.Internal("", fmt.Errorf("dependency cycle involving task %q", task.ID))
			}
		}
	}
	return nil
}
