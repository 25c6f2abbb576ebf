package graph

import (
	"maps"
	"slices"
)

// Stage is one step of the execution plan: a single node, or every member of
// a concurrent group.
type Stage struct {
	Group string   `json:"group,omitempty"`
	Nodes []string `json:"nodes"`
}

// Concurrent reports whether the stage dispatches a group.
func (s Stage) Concurrent() bool {
	return s.Group != ""
}

// Graph is a validated, immutable node topology.
type Graph struct {
	name       string
	entry      string
	exit       string
	nodes      map[string]Node
	order      []string
	stages     []Stage
	dependents map[string][]string
	groups     map[string][]string
}

func (g *Graph) Name() string  { return g.name }
func (g *Graph) Entry() string { return g.entry }
func (g *Graph) Exit() string  { return g.exit }
func (g *Graph) Len() int      { return len(g.nodes) }

// Node returns a copy of the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Order returns the cached topological order. Ties are broken by node id.
func (g *Graph) Order() []string {
	return slices.Clone(g.order)
}

// Stages returns the cached execution plan.
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.stages))
	for i, s := range g.stages {
		out[i] = Stage{Group: s.Group, Nodes: slices.Clone(s.Nodes)}
	}
	return out
}

// Dependents returns the ids of nodes that depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	return slices.Clone(g.dependents[id])
}

// Group returns the sorted members of a concurrent group.
func (g *Graph) Group(tag string) []string {
	return slices.Clone(g.groups[tag])
}

// Groups returns the group tags in sorted order.
func (g *Graph) Groups() []string {
	return slices.Sorted(maps.Keys(g.groups))
}

// Definition returns the declarative form of the graph with entry and exit
// filled in and nodes in topological order.
func (g *Graph) Definition() Definition {
	def := Definition{
		Name:  g.name,
		Entry: g.entry,
		Exit:  g.exit,
		Nodes: make([]Node, 0, len(g.order)),
	}
	for _, id := range g.order {
		def.Nodes = append(def.Nodes, g.nodes[id].clone())
	}
	return def
}
