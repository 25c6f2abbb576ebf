package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// ErrAborted marks a batch item whose pipeline run ended Aborted.
var ErrAborted = errors.New("pipeline aborted")

// Submission is one batch item: an optional task id and the input payload.
type Submission struct {
	TaskID string         `json:"task_id,omitempty" yaml:"task_id,omitempty" validate:"omitempty,max=128,excludesall=/"`
	Input  map[string]any `json:"input" yaml:"input" validate:"required"`
}

// Runner runs one pipeline state to a terminal status. *pipeline.Executor
// implements it.
type Runner interface {
	Run(ctx context.Context, ps *state.PipelineState) (*state.PipelineState, error)
}

// RunPipelines runs every submission through exec using ProcessBatch.
// Completed and CompletedDegraded states are returned as results; an Aborted
// run is reported as a TaskError wrapping ErrAborted. The executor's persister
// and notifier see every run, including aborted ones.
func RunPipelines(
	ctx context.Context,
	cfg config.BatchConfig,
	exec Runner,
	items []Submission,
	progress ProgressFunc[*state.PipelineState],
) (BatchResult[Submission, *state.PipelineState], error) {
	processor := func(ctx context.Context, item Submission) (*state.PipelineState, error) {
		final, err := exec.Run(ctx, state.New(item.TaskID, item.Input))
		if err != nil {
			return nil, err
		}
		if final.Status() == state.StatusAborted {
			return nil, abortedError(final)
		}
		return final, nil
	}

	return ProcessBatch(ctx, cfg, items, processor, progress)
}

// abortedError names the task and the last warning, which is the one that
// stopped the run.
func abortedError(final *state.PipelineState) error {
	warnings := final.Warnings()
	if len(warnings) == 0 {
		return fmt.Errorf("%w: task %s", ErrAborted, final.TaskID())
	}
	last := warnings[len(warnings)-1]
	return fmt.Errorf("%w: task %s: %s", ErrAborted, final.TaskID(), last.Message)
}
