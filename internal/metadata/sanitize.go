// Package metadata flattens CRM records into the attribute maps that are
// embedded and stored alongside vectors.
package metadata

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scoring/internal/model"
)

// Metadata is a flat attribute map. Values are strings, float64s, bools, or
// []string. Nothing else survives Sanitize.
type Metadata map[string]any

// Sanitize normalizes a record for storage in a vector index. For each
// attribute:
//
//  1. nil values are dropped.
//  2. lookup objects keep only their id, stringified; without an id the
//     attribute is dropped.
//  3. arrays keep their non-nil primitive elements, stringified; an array
//     left empty is dropped.
//  4. primitives are kept as-is.
//  5. anything else is dropped.
func Sanitize(rec model.Record) Metadata {
	out := make(Metadata, len(rec))
	for k, v := range rec {
		if clean, ok := sanitizeValue(v); ok {
			out[k] = clean
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return lookupID(t)
	case model.Record:
		return lookupID(t)
	case []any:
		return sanitizeList(t)
	case []string:
		if len(t) == 0 {
			return nil, false
		}
		return append([]string(nil), t...), true
	default:
		return primitive(v)
	}
}

func lookupID(obj map[string]any) (any, bool) {
	id, ok := obj["id"]
	if !ok || id == nil {
		return nil, false
	}
	s, ok := primitiveString(id)
	if !ok {
		return nil, false
	}
	return s, true
}

func sanitizeList(items []any) (any, bool) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := primitiveString(item); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// primitive normalizes scalar values to the three JSON scalar types the
// index backends accept.
func primitive(v any) (any, bool) {
	switch t := v.(type) {
	case string, bool, float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String(), true
		}
		return f, true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	default:
		return nil, false
	}
}

func primitiveString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// JSON renders m as the text handed to the embedding model. Keys are
// emitted in sorted order so equal maps always embed identically.
func JSON(m Metadata) (string, error) {
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return "", eris.Wrap(err, "metadata: marshal")
	}
	return string(b), nil
}
