package config

import "time"

// ExecutorConfig defines configuration for pipeline execution.
//
// Timeouts:
//   - PipelineTimeout bounds a whole run. When it elapses, in-flight capability
//     calls are cancelled and the run ends Aborted. 0 disables the bound.
//   - NodeTimeout is the per-attempt timeout for nodes whose capability binding
//     does not carry its own. Expiry is a node failure handled by the failure
//     policy, not an abort.
//
// RetryBackoff is the fixed delay between a failed attempt and its retry.
//
// MaxConcurrency bounds how many members of one concurrent group run at once.
// 0 means the group size.
//
// Example JSON:
//
//	{
//	  "pipeline_timeout": "2m",
//	  "node_timeout": "30s",
//	  "retry_backoff": "500ms",
//	  "max_concurrency": 4,
//	  "observer": "slog"
//	}
type ExecutorConfig struct {
	PipelineTimeout Duration `json:"pipeline_timeout" yaml:"pipeline_timeout"`
	NodeTimeout     Duration `json:"node_timeout" yaml:"node_timeout"`
	RetryBackoff    Duration `json:"retry_backoff" yaml:"retry_backoff"`
	MaxConcurrency  int      `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=0"`

	// Observer specifies which observer implementation to use ("noop", "slog", etc.)
	Observer string `json:"observer" yaml:"observer"`
}

// DefaultExecutorConfig returns defaults suited to LLM-backed capabilities.
//
// Default values:
//   - PipelineTimeout: 2m
//   - NodeTimeout: 30s
//   - RetryBackoff: 500ms
//   - MaxConcurrency: 0 (group size)
//   - Observer: "slog"
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PipelineTimeout: Duration(2 * time.Minute),
		NodeTimeout:     Duration(30 * time.Second),
		RetryBackoff:    Duration(500 * time.Millisecond),
		MaxConcurrency:  0,
		Observer:        "slog",
	}
}

func (c *ExecutorConfig) Merge(source *ExecutorConfig) {
	if source.PipelineTimeout > 0 {
		c.PipelineTimeout = source.PipelineTimeout
	}

	if source.NodeTimeout > 0 {
		c.NodeTimeout = source.NodeTimeout
	}

	if source.RetryBackoff > 0 {
		c.RetryBackoff = source.RetryBackoff
	}

	if source.MaxConcurrency > 0 {
		c.MaxConcurrency = source.MaxConcurrency
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// GroupLimit returns the concurrency bound for a group with size members.
func (c *ExecutorConfig) GroupLimit(size int) int {
	if c.MaxConcurrency <= 0 || c.MaxConcurrency > size {
		return max(size, 1)
	}
	return c.MaxConcurrency
}
