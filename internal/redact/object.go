package redact

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vburojevic/dcw/internal/domain"
)

const (
	truncatedKey = "__truncated__"
	depthMarker  = "[MAX DEPTH]"
)

// RedactObject scrubs a decoded JSON-like value. Maps and slices are walked
// up to the engine's depth; keys and elements beyond the caps are replaced by
// a single truncation entry. Applying it to its own output is a no-op.
func (e *Engine) RedactObject(v any, depth int) any {
	return e.redactNode("", v, depth)
}

func (e *Engine) redactNode(name string, v any, depth int) any {
	switch val := v.(type) {
	case nil, bool, float64, float32, int, int64, int32, uint, uint64, json.Number:
		if name != "" && e.SensitiveName(name) {
			return domain.RedactedMarker
		}
		return val
	case string:
		out, _ := e.RedactValue(name, val)
		return out
	case map[string]any:
		if name != "" && e.SensitiveName(name) {
			return domain.RedactedMarker
		}
		if depth >= e.maxDepth {
			return depthMarker
		}
		return e.redactMap(val, depth)
	case []any:
		if name != "" && e.SensitiveName(name) {
			return domain.RedactedMarker
		}
		if depth >= e.maxDepth {
			return depthMarker
		}
		return e.redactSlice(name, val, depth)
	default:
		generic, err := toGeneric(val)
		if err != nil {
			// never forward the original when it cannot be walked
			out, _ := e.RedactValue(name, fmt.Sprintf("%v", val))
			return e.ScrubString(out)
		}
		return e.redactNode(name, generic, depth)
	}
}

func (e *Engine) redactMap(m map[string]any, depth int) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != truncatedKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	limit := len(keys)
	_, hadMarker := m[truncatedKey]
	if hadMarker || len(keys) > e.maxKeys {
		limit = min(len(keys), e.maxKeys-1)
	}

	out := make(map[string]any, limit+1)
	for _, k := range keys[:limit] {
		out[k] = e.redactNode(k, m[k], depth+1)
	}
	if hadMarker && limit == len(keys) {
		out[truncatedKey] = e.redactNode(truncatedKey, m[truncatedKey], depth+1)
	} else if limit < len(keys) {
		out[truncatedKey] = fmt.Sprintf("[TRUNCATED: %d more keys]", len(keys)-limit)
	}
	return out
}

func (e *Engine) redactSlice(name string, s []any, depth int) []any {
	limit := len(s)
	if len(s) > e.maxArrayItems {
		limit = e.maxArrayItems - 1
	}
	out := make([]any, 0, limit+1)
	for _, item := range s[:limit] {
		// elements inherit the slice's name so tokens: ["a","b"] stays covered
		out = append(out, e.redactNode(name, item, depth+1))
	}
	if limit < len(s) {
		out = append(out, fmt.Sprintf("[TRUNCATED: %d more items]", len(s)-limit))
	}
	return out
}

// toGeneric converts typed values (structs, typed maps) into the JSON model
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stringify renders a value for display, degrading to %v when it cannot be
// serialized.
func Stringify(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return val, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v), domain.NewPipelineError(domain.RedactionError, "value", err)
	}
	return string(b), nil
}
