// Package pipeline executes a built graph against one PipelineState.
//
// The Executor walks the graph's cached stage plan. A sequential stage runs
// its single node on the controlling goroutine. A concurrent stage launches
// every group member under an errgroup bounded by the configured
// concurrency, waits for all of them at a join barrier, commits their results
// in member order, and records the merged group output before any dependent
// starts.
//
// The controlling goroutine is the only writer of the PipelineState. Branch
// goroutines receive a state.View built before dispatch and hand back a
// nodeResult; they never touch the live state.
//
// # Failure policy
//
// Every node failure goes through the same FailurePolicy:
//
//	attempt fails → retry after RetryBackoff, up to MaxRetries (default 1)
//	exhausted, fallback set          → FailedWithFallback, run degrades
//	exhausted, no fallback, critical → FailedFinal, run aborts
//	exhausted, no fallback, optional → FailedFinal, key absent, run degrades
//
// Pipeline cancellation (PipelineTimeout or the caller's context) is never
// retried and aborts the run. A per-node timeout is an ordinary failure.
//
// # Collaborators
//
// After the state is sealed, the Persister receives the final state and the
// execution trace, then the Notifier is told the run completed. Both are
// invoked exactly once per run and cannot change the outcome.
package pipeline
