// Package capability defines the unit of work a pipeline node invokes and the
// two lookup tables that connect nodes to implementations.
//
// A Capability receives a read-only state.View and returns a new
// state.PartialOutput. Implementations are registered by name in a Catalog
// during startup. Binding a graph against a catalog produces a Registry that
// maps each node id to its Capability and timeout; the Registry has no
// mutators and is shared by every run of the graph.
//
// Invoke is the single call path used by the executor. It applies the
// per-node timeout, recovers panics, and normalizes every failure into a
// *CapabilityError or *ValidationError so the failure policy can treat all
// capabilities alike.
package capability
