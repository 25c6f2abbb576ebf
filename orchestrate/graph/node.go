package graph

import (
	"slices"

	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// DefaultMaxRetries is the retry budget of a node that does not set one.
const DefaultMaxRetries = 1

// Node is one step of the graph, bound to one capability.
type Node struct {
	ID            string              `json:"id" yaml:"id" validate:"required"`
	Capability    string              `json:"capability" yaml:"capability" validate:"required"`
	DependsOn     []string            `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Group         string              `json:"group,omitempty" yaml:"group,omitempty"`
	Outputs       []string            `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Requires      []string            `json:"requires,omitempty" yaml:"requires,omitempty"`
	Fallback      state.PartialOutput `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	MaxRetriesNil *int                `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,gte=0"`
	CriticalNil   *bool               `json:"critical,omitempty" yaml:"critical,omitempty"`
	Timeout       config.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// MaxRetries returns the retry budget, defaulting to DefaultMaxRetries.
func (n Node) MaxRetries() int {
	if n.MaxRetriesNil == nil {
		return DefaultMaxRetries
	}
	return *n.MaxRetriesNil
}

// Critical reports whether a final failure without fallback aborts the run.
// Nodes are critical unless explicitly marked otherwise.
func (n Node) Critical() bool {
	if n.CriticalNil == nil {
		return true
	}
	return *n.CriticalNil
}

// HasFallback reports whether a fallback value is configured.
func (n Node) HasFallback() bool {
	return n.Fallback != nil
}

// Declares reports whether key is among the declared outputs. A node without
// declared outputs accepts any key.
func (n Node) Declares(key string) bool {
	if len(n.Outputs) == 0 {
		return true
	}
	return slices.Contains(n.Outputs, key)
}

func (n Node) clone() Node {
	n.DependsOn = slices.Clone(n.DependsOn)
	n.Outputs = slices.Clone(n.Outputs)
	n.Requires = slices.Clone(n.Requires)
	n.Fallback = n.Fallback.Clone()
	if n.MaxRetriesNil != nil {
		v := *n.MaxRetriesNil
		n.MaxRetriesNil = &v
	}
	if n.CriticalNil != nil {
		v := *n.CriticalNil
		n.CriticalNil = &v
	}
	return n
}

// Definition is the declarative form of a graph.
type Definition struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Entry string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit  string `json:"exit,omitempty" yaml:"exit,omitempty"`
	Nodes []Node `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
}
