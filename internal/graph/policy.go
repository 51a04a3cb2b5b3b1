package graph

import (
	"github.com/patrongate/patrongate/pkg/gateway"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// Cardinality is the rule for how many results a fetch must return to
// count as successful.
type Cardinality int

const (
	// OptionalMany never violates on count; only transport or backend
	// errors propagate.
	OptionalMany Cardinality = iota

	// ExactlyOne requires the declared total count to be exactly 1.
	ExactlyOne

	// OneOrMore requires the declared total count to be at least 1.
	OneOrMore
)

// Policy decides what counts as success for one fetch and whether a
// failure blocks the tasks depending on it.
type Policy struct {
	Cardinality Cardinality

	// StopDependents marks a failing task as terminal for its dependents:
	// they are skipped instead of issued.
	StopDependents bool

	// TotalField names the total-count field in the response body, e.g.
	// "totalRecords". Empty means the fetch returns a single entity and
	// no count check applies.
	TotalField string
}

// Evaluate checks one completed envelope against the policy. A nil return
// means the fetch succeeded.
func (p Policy) Evaluate(env *gateway.Envelope) *serverErrors.EncodedError {
	if !env.OK() {
		return serverErrors.Upstream(env.StatusCode, string(env.Body), env.SourcePath)
	}

	if p.TotalField == "" {
		return nil
	}

	total := env.TotalRecords(p.TotalField)
	switch p.Cardinality {
	case ExactlyOne:
		if total == 1 {
			return nil
		}
		if total < 1 {
			return serverErrors.NotFound(env.SourcePath)
		}
		return serverErrors.MultipleResults(env.SourcePath)
	case OneOrMore:
		if total >= 1 {
			return nil
		}
		return serverErrors.NotFound(env.SourcePath)
	default:
		return nil
	}
}
