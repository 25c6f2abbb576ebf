// Package workflows runs many backlog submissions through the pipeline
// executor at once.
//
// ProcessBatch is a generic worker pool: items are distributed to a bounded
// set of workers and results come back in original item order despite
// concurrent execution. Failures are collected as TaskError values carrying
// the item index, the item, and the underlying error.
//
// RunPipelines specializes ProcessBatch for a Runner such as the pipeline
// executor. Each Submission
// becomes a fresh PipelineState; runs that end Aborted are reported as
// failures wrapping ErrAborted, while Completed and CompletedDegraded runs are
// results.
//
//	exec, _ := pipeline.New(g, registry, config.DefaultExecutorConfig())
//	result, err := workflows.RunPipelines(ctx, config.DefaultBatchConfig(), exec, items, nil)
//	if err != nil {
//	    log.Fatal(err) // every submission aborted
//	}
//	for _, taskErr := range result.Errors {
//	    log.Printf("submission %d: %v", taskErr.Index, taskErr.Err)
//	}
//
// # Error Handling Modes
//
// By default every item is attempted and an error is returned only when all
// items failed. With fail_fast the first failure cancels the remaining
// workers and ProcessBatch returns a BatchError with the partial results.
//
// # Observability
//
// The configured observer receives batch.start, worker.start,
// worker.complete, and batch.complete events.
package workflows
