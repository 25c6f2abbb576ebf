// Package config provides configuration structures for orchestration components.
//
// Configuration types follow one pattern throughout: they exist only during
// initialization, carry JSON and YAML tags so they can be loaded from files,
// provide a Default* constructor with working values, and expose Merge to layer
// a partially populated source over those defaults. Observers are named by
// string and resolved through the observability registry at construction time.
//
// # Executor Configuration
//
// ExecutorConfig controls a pipeline run:
//
//	cfg := config.DefaultExecutorConfig()
//	cfg.PipelineTimeout = config.Duration(time.Minute)
//	cfg.MaxConcurrency = 2
//
//	exec, err := pipeline.New(graph, registry, cfg)
//
// Example YAML:
//
//	pipeline_timeout: 2m
//	node_timeout: 30s
//	retry_backoff: 500ms
//	max_concurrency: 0
//	observer: slog
//
// # Batch Configuration
//
// BatchConfig controls how many items are pushed through the executor at once
// by workflows.ProcessBatch:
//
//	cfg := config.DefaultBatchConfig()
//	cfg.MaxWorkers = 8
//
// Worker pool sizing:
//   - MaxWorkers = 0: auto-detect min(NumCPU*2, WorkerCap, len(items))
//   - MaxWorkers > 0: exact worker count
//
// Error handling:
//   - FailFast = true: stop on the first failed item and cancel the rest
//   - FailFast = false (default): process every item and collect failures
//
// # Durations
//
// Duration wraps time.Duration so configuration files can use "30s" strings in
// both JSON and YAML. Plain JSON numbers are read as nanoseconds.
package config
