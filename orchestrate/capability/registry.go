package capability

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Binding is the resolved capability of one node.
type Binding struct {
	Ref        string
	Capability Capability
	Timeout    time.Duration
}

// Registry maps node ids to bindings. It is immutable after NewRegistry.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry copies bindings into a new Registry.
func NewRegistry(bindings map[string]Binding) (*Registry, error) {
	r := &Registry{bindings: make(map[string]Binding, len(bindings))}
	for node, b := range bindings {
		if b.Capability == nil {
			return nil, fmt.Errorf("%w: node %s (%s)", ErrNilCapability, node, b.Ref)
		}
		r.bindings[node] = b
	}
	return r, nil
}

// Resolve returns the binding for node.
func (r *Registry) Resolve(node string) (Binding, error) {
	b, ok := r.bindings[node]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %s", ErrUnbound, node)
	}
	return b, nil
}

// Nodes returns the bound node ids in sorted order.
func (r *Registry) Nodes() []string {
	return slices.Sorted(maps.Keys(r.bindings))
}

func (r *Registry) Len() int { return len(r.bindings) }
