// Package state holds the per-run record of a pipeline execution.
//
// A PipelineState is created for each submitted item, mutated only by the
// executor that owns the run, and sealed once the run reaches a terminal
// status. Capabilities never see the PipelineState itself: they receive a View
// holding deep copies of the input payload and of the outputs of their declared
// dependencies, and return a new PartialOutput that the executor commits.
//
// # Lifecycle
//
//	ps := state.New("", map[string]any{"content": "checkout crashes"})
//	ps.Status()  // Initialized
//
//	// executor
//	ps.Begin(graph.Order(), time.Now())        // Executing, every node Pending
//	ps.Commit(record, output, trail)           // once per node
//	ps.Finish(state.StatusCompleted, time.Now())
//
//	ps.SetOutput(...)                          // ErrSealed
//
// # Write-once outputs
//
// Every node writes at most one output, under its own id. A second Commit for
// the same node fails with ErrOutputExists. Concurrent group outputs are merged
// and recorded under the group tag with SetGroupOutput, also write-once.
//
// # Status machines
//
// Node: Pending → Running → {Succeeded, Failed}; Failed → Retrying → Running;
// exhaustion → {FailedWithFallback, FailedFinal}; Pending → Skipped.
//
// Pipeline: Initialized → Executing → {Completed, CompletedDegraded, Aborted}.
//
// Illegal moves return ErrInvalidTransition.
package state
