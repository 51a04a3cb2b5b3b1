// Package join merges independently fetched collections into nested
// composite records by key matching. There is no foreign-key join at the
// data store; each right-hand collection comes from one batched backend
// call sized to the left collection.
package join

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/patrongate/patrongate/pkg/fieldpath"
	"github.com/patrongate/patrongate/pkg/gateway"
)

// Spec declares how a right-hand collection attaches to each element of a
// left-hand collection.
type Spec struct {
	// LeftKeyPath addresses the key inside each left element, e.g.
	// "patronGroup".
	LeftKeyPath string

	// RightCollectionField names the array inside the right envelope's
	// body, e.g. "usergroups".
	RightCollectionField string

	// RightKeyField names the key inside each right element, e.g. "id".
	RightKeyField string

	// DestinationPath is where matches are attached on the left element.
	DestinationPath string

	// Multi attaches all matches as an array. When false only the first
	// match is kept and siblings are dropped; left entities with several
	// matches silently lose all but one. Call sites rely on the
	// one-match behavior, so it is kept as-is.
	Multi bool
}

// Apply attaches matching right-hand elements to every left element and
// returns how many left elements found no match. Elements without a match
// get no destination field at all, not a null and not an empty array.
func Apply(left []map[string]any, right *gateway.Envelope, spec Spec) (unmatched int, err error) {
	var doc map[string]any
	if err := json.Unmarshal(right.Body, &doc); err != nil {
		return 0, fmt.Errorf("parse %s response: %w", right.SourcePath, err)
	}

	collection, ok := fieldpath.Get(doc, spec.RightCollectionField)
	if !ok {
		return len(left), nil
	}
	elements, ok := collection.([]any)
	if !ok {
		return 0, fmt.Errorf("%s.%s is not a collection", right.SourcePath, spec.RightCollectionField)
	}

	// Index the right side by key; matching stays O(n+m) and behavior is
	// identical to a nested scan because insertion order is preserved.
	index := make(map[string][]map[string]any, len(elements))
	for _, el := range elements {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		key := fieldpath.GetString(m, spec.RightKeyField)
		if key == "" {
			continue
		}
		index[key] = append(index[key], m)
	}

	for _, el := range left {
		key := fieldpath.GetString(el, spec.LeftKeyPath)
		matches := index[key]
		if key == "" || len(matches) == 0 {
			unmatched++
			continue
		}
		if spec.Multi {
			attached := make([]any, len(matches))
			for i, m := range matches {
				attached[i] = any(m)
			}
			fieldpath.Set(el, spec.DestinationPath, attached)
			continue
		}
		fieldpath.Set(el, spec.DestinationPath, matches[0])
	}
	return unmatched, nil
}

// Predicate builds the filter-query fragment used to batch-fetch the
// right-hand collection for a join in one round trip: a boolean OR of
// equality predicates over the distinct key values found in left. Returns
// "" when left yields no keys, in which case there is nothing to fetch.
func Predicate(left []map[string]any, leftKeyPath, rightField string) string {
	seen := make(map[string]struct{})
	var values []string
	for _, el := range left {
		v := fieldpath.GetString(el, leftKeyPath)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if len(values) == 0 {
		return ""
	}

	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = fmt.Sprintf("%s==%q", rightField, v)
	}
	return strings.Join(terms, " or ")
}
