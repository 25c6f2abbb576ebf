package config

// BatchConfig defines configuration for running many items through the
// pipeline concurrently.
//
// Example JSON:
//
//	{
//	  "max_workers": 4,
//	  "worker_cap": 16,
//	  "fail_fast": false,
//	  "observer": "slog"
//	}
type BatchConfig struct {
	// MaxWorkers specifies exact worker pool size (0 = auto-detect)
	MaxWorkers int `json:"max_workers" yaml:"max_workers" validate:"gte=0"`

	// WorkerCap limits auto-detected workers (default: 16)
	WorkerCap int `json:"worker_cap" yaml:"worker_cap" validate:"gte=0"`

	// FailFastNil controls error handling behavior. Use FailFast() to access.
	// When nil, defaults to false: every item is attempted.
	FailFastNil *bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`

	// Observer specifies which observer implementation to use ("noop", "slog", etc.)
	Observer string `json:"observer" yaml:"observer"`
}

func (c *BatchConfig) FailFast() bool {
	if c.FailFastNil == nil {
		return false
	}
	return *c.FailFastNil
}

// DefaultBatchConfig returns defaults for batch runs.
//
// Default configuration:
//   - MaxWorkers: 0 (auto-detect: min(NumCPU*2, WorkerCap, len(items)))
//   - WorkerCap: 16 (each item fans out to several LLM calls)
//   - FailFast: false (one bad submission must not cancel the rest)
//   - Observer: "slog"
func DefaultBatchConfig() BatchConfig {
	failFast := false
	return BatchConfig{
		MaxWorkers:  0,
		WorkerCap:   16,
		FailFastNil: &failFast,
		Observer:    "slog",
	}
}

func (c *BatchConfig) Merge(source *BatchConfig) {
	if source.MaxWorkers > 0 {
		c.MaxWorkers = source.MaxWorkers
	}

	if source.WorkerCap > 0 {
		c.WorkerCap = source.WorkerCap
	}

	if source.FailFastNil != nil {
		c.FailFastNil = source.FailFastNil
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
