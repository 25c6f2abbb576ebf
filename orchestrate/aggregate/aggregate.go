// Package aggregate joins the outputs of a concurrent group.
//
// Group members declare disjoint output keys, so a merge is a plain key union
// and never has to resolve a conflict. Members that produced no output
// contribute nothing: their keys stay absent and downstream consumers treat
// them as unknown.
package aggregate

import (
	"context"
	"maps"
	"slices"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// UnionName is the catalog name of the union capability.
const UnionName = "aggregate.union"

// Merge returns the key union of the given member outputs. Members are
// visited in sorted id order; the result shares no structure with the input.
func Merge(outputs map[string]state.PartialOutput) state.PartialOutput {
	merged := state.PartialOutput{}
	for _, member := range slices.Sorted(maps.Keys(outputs)) {
		for key, value := range outputs[member].Clone() {
			if _, exists := merged[key]; !exists {
				merged[key] = value
			}
		}
	}
	return merged
}

// Union returns a capability that merges the outputs of the node's
// dependencies. A node bound to it carries the joined result of a group.
func Union() capability.Capability {
	return capability.Func(func(_ context.Context, view state.View) (state.PartialOutput, error) {
		outputs := make(map[string]state.PartialOutput)
		for _, dep := range view.Dependencies() {
			out, _ := view.Output(dep)
			outputs[dep] = out
		}
		return Merge(outputs), nil
	})
}

// Register adds the builtin aggregation capabilities to cat.
func Register(cat *capability.Catalog) error {
	return cat.Register(UnionName, Union())
}
