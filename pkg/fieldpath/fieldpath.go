// Package fieldpath reads and writes values in decoded JSON trees
// (map[string]any / []any) addressed by dotted paths such as
// "personal.email" or "users.0.patronGroup". It is deliberately a small
// set of pure functions; no reflection, no struct tags.
package fieldpath

import (
	"strconv"
	"strings"
)

// Get returns the value at path and whether it exists. A numeric segment
// indexes into a slice.
func Get(doc any, path string) (any, bool) {
	current := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// GetString is Get narrowed to string values. Missing or non-string
// values return "".
func GetString(doc any, path string) string {
	v, ok := Get(doc, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set writes value at path, creating intermediate maps as needed. Setting
// through a slice requires the element to already exist; Set never grows
// slices. Returns false when the path cannot be written.
func Set(doc map[string]any, path string, value any) bool {
	segs := strings.Split(path, ".")
	var current any = doc
	for _, seg := range segs[:len(segs)-1] {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				child := map[string]any{}
				node[seg] = child
				current = child
				continue
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return false
			}
			current = node[idx]
		default:
			return false
		}
	}

	last := segs[len(segs)-1]
	switch node := current.(type) {
	case map[string]any:
		node[last] = value
		return true
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(node) {
			return false
		}
		node[idx] = value
		return true
	default:
		return false
	}
}

// Delete removes the value at path if present.
func Delete(doc map[string]any, path string) {
	segs := strings.Split(path, ".")
	var current any = doc
	for _, seg := range segs[:len(segs)-1] {
		node, ok := current.(map[string]any)
		if !ok {
			return
		}
		current, ok = node[seg]
		if !ok {
			return
		}
	}
	if node, ok := current.(map[string]any); ok {
		delete(node, segs[len(segs)-1])
	}
}
