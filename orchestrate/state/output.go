package state

import (
	"encoding/json"
	"maps"
	"slices"
)

// PartialOutput is the result a node contributes to the pipeline. Keys are
// the node's output keys; a key that is absent means "unknown", never zero.
type PartialOutput map[string]any

// Keys returns the output keys in sorted order.
func (p PartialOutput) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Clone returns a deep copy. Nested maps and slices are copied so the clone
// shares no mutable structure with p.
func (p PartialOutput) Clone() PartialOutput {
	if p == nil {
		return nil
	}
	out := make(PartialOutput, len(p))
	for k, v := range p {
		out[k] = copyValue(v)
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case PartialOutput:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}

// AsFloat converts the numeric representations produced by JSON, YAML, HCL,
// and Go callers to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
