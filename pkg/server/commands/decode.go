package commands

import "encoding/json"

// decodeObject parses a JSON object body. Malformed bodies yield nil;
// the fetch already succeeded, so a bad body only empties the slot.
func decodeObject(body []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	return obj
}

// fieldAsSlice parses a JSON object body and returns the named top-level
// array field.
func fieldAsSlice(body []byte, field string) ([]any, bool) {
	obj := decodeObject(body)
	if obj == nil {
		return nil, false
	}
	records, ok := obj[field].([]any)
	return records, ok
}
