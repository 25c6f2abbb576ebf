// Package graph builds and validates the static node topology a pipeline
// executes.
//
// A Definition is the declarative form: a list of nodes, each naming a
// capability, its dependencies, and optionally a concurrent group. Build
// checks every structural rule up front and returns a *FatalGraphError on the
// first violation, so a run can never discover a malformed graph mid-flight.
//
// A built Graph is immutable and caches everything the executor needs: a
// deterministic topological order, the stage plan (each stage is a single
// node or one whole concurrent group), and reverse dependency sets. It may be
// shared by any number of concurrent runs.
//
// # Rules
//
//   - node ids are unique and non-empty; every node names a capability
//   - dependencies exist and never point at the node itself
//   - the graph is acyclic
//   - exactly one entry (no dependencies) and one exit (no dependents)
//   - members of a group do not depend on each other
//   - members of a group have identical dependents
//   - members of a group declare outputs, and those outputs are disjoint
//   - fallback keys are a subset of the declared outputs
//   - collapsing each group to one stage leaves the graph acyclic
//
// Definitions load from YAML, JSON, or HCL with LoadFile. Bind resolves the
// capability refs against a capability.Catalog.
package graph
