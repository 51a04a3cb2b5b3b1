// Package id generates the lexically sortable unique ids used to tag
// requests. Ids created within the same millisecond still sort in
// creation order.
package id

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mutex   sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a fresh id.
func New() string {
	mutex.Lock()
	defer mutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsValid reports whether s is a well-formed id.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
