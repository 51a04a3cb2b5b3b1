package graph

import (
	"sync"
	"sync/atomic"

	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// FailureState is the single piece of state shared by the tasks of one
// request. The first task to fail wins; everything recorded afterwards is
// dropped, which is what guarantees at most one client-visible error per
// request.
type FailureState struct {
	failed atomic.Bool

	mu  sync.Mutex
	err *serverErrors.EncodedError
}

// TrySet records err if no failure has been recorded yet. Returns true
// when this call was the first writer.
func (f *FailureState) TrySet(err *serverErrors.EncodedError) bool {
	if !f.failed.CompareAndSwap(false, true) {
		return false
	}
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return true
}

// Failed reports whether any task has failed.
func (f *FailureState) Failed() bool {
	return f.failed.Load()
}

// Err returns the recorded failure, or nil.
func (f *FailureState) Err() *serverErrors.EncodedError {
	if !f.failed.Load() {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
