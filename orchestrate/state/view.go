package state

import (
	"maps"
	"slices"
)

// View is the read-only input of a capability: the task id, the input
// payload, and the outputs of completed dependencies. A View holds deep
// copies; nothing reachable from it aliases the live PipelineState.
type View struct {
	taskID  string
	input   map[string]any
	outputs map[string]PartialOutput
}

// NewView builds a View from the given data. Arguments are deep-copied.
func NewView(taskID string, input map[string]any, outputs map[string]PartialOutput) View {
	v := View{
		taskID:  taskID,
		input:   copyMap(input),
		outputs: make(map[string]PartialOutput, len(outputs)),
	}
	for k, out := range outputs {
		v.outputs[k] = out.Clone()
	}
	return v
}

func (v View) TaskID() string { return v.taskID }

// Input returns a copy of the input payload.
func (v View) Input() map[string]any { return copyMap(v.input) }

// InputString returns the input value under key when it is a string.
func (v View) InputString(key string) (string, bool) {
	s, ok := v.input[key].(string)
	return s, ok
}

// Dependencies returns the ids of dependencies that produced an output.
func (v View) Dependencies() []string {
	return slices.Sorted(maps.Keys(v.outputs))
}

// Output returns a copy of one dependency's output.
func (v View) Output(node string) (PartialOutput, bool) {
	out, ok := v.outputs[node]
	if !ok {
		return nil, false
	}
	return out.Clone(), true
}

// Lookup finds key in the dependency outputs, visiting dependencies in
// sorted order. ok is false when no dependency produced the key.
func (v View) Lookup(key string) (any, bool) {
	for _, node := range v.Dependencies() {
		if val, ok := v.outputs[node][key]; ok {
			return copyValue(val), true
		}
	}
	return nil, false
}

// Float looks up key and converts it to float64. An absent or non-numeric
// key reports ok=false; absent keys are unknown, not zero.
func (v View) Float(key string) (float64, bool) {
	val, ok := v.Lookup(key)
	if !ok {
		return 0, false
	}
	return AsFloat(val)
}

// String looks up key and returns it when it is a string.
func (v View) String(key string) (string, bool) {
	val, ok := v.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// Merged returns the union of every dependency output.
func (v View) Merged() PartialOutput {
	out := PartialOutput{}
	for _, node := range v.Dependencies() {
		for k, val := range v.outputs[node] {
			if _, ok := out[k]; !ok {
				out[k] = copyValue(val)
			}
		}
	}
	return out
}
