package docstore

import (
	"encoding/json"
	"reflect"
)

type transformKind int

const (
	transformIncrement transformKind = iota
	transformArrayUnion
	transformArrayRemove
)

// Transform is a server-side field transform usable as an Update value.
type Transform struct {
	kind   transformKind
	delta  int64
	values []any
}

// Increment adds delta to a numeric field, treating a missing field as zero.
func Increment(delta int64) Transform {
	return Transform{kind: transformIncrement, delta: delta}
}

// ArrayUnion appends each value not already present in an array field.
func ArrayUnion(values ...any) Transform {
	return Transform{kind: transformArrayUnion, values: values}
}

// ArrayRemove removes every occurrence of the values from an array field.
func ArrayRemove(values ...any) Transform {
	return Transform{kind: transformArrayRemove, values: values}
}

// apply resolves the transform against the current (JSON-decoded) value.
func (t Transform) apply(current any) any {
	switch t.kind {
	case transformIncrement:
		var base float64
		switch v := current.(type) {
		case float64:
			base = v
		case int64:
			base = float64(v)
		case int:
			base = float64(v)
		}
		return base + float64(t.delta)
	case transformArrayUnion:
		arr, _ := current.([]any)
		out := append([]any{}, arr...)
		for _, v := range t.values {
			if !containsValue(out, v) {
				out = append(out, normalizeJSON(v))
			}
		}
		return out
	case transformArrayRemove:
		arr, _ := current.([]any)
		out := make([]any, 0, len(arr))
		for _, existing := range arr {
			if !containsValue(t.values, existing) {
				out = append(out, existing)
			}
		}
		return out
	}
	return current
}

func containsValue(arr []any, v any) bool {
	nv := normalizeJSON(v)
	for _, existing := range arr {
		if reflect.DeepEqual(normalizeJSON(existing), nv) {
			return true
		}
	}
	return false
}

// normalizeJSON maps a value to the shape encoding/json would decode it into.
func normalizeJSON(v any) any {
	raw, err := json.Marshal(encodeValue(v))
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
