package graph

import (
	"fmt"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
)

// Bind resolves every node's capability ref against cat and returns the
// immutable node registry. Nodes without their own timeout get
// defaultTimeout. Unknown refs yield a *FatalGraphError listing every
// unresolved node.
func Bind(g *Graph, cat *capability.Catalog, defaultTimeout time.Duration) (*capability.Registry, error) {
	bindings := make(map[string]capability.Binding, g.Len())
	var unresolved []string
	var refs []string

	for _, id := range g.order {
		n := g.nodes[id]
		c, ok := cat.Lookup(n.Capability)
		if !ok {
			unresolved = append(unresolved, id)
			refs = append(refs, n.Capability)
			continue
		}

		timeout := n.Timeout.Std()
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		bindings[id] = capability.Binding{Ref: n.Capability, Capability: c, Timeout: timeout}
	}

	if len(unresolved) > 0 {
		return nil, fatal(KindUnresolvedCapability, fmt.Sprintf("unknown capabilities %v", refs), unresolved...)
	}

	return capability.NewRegistry(bindings)
}
