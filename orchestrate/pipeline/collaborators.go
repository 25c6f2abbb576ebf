package pipeline

import (
	"context"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Persister stores the outcome of a run. It is called once per run, after
// the state is sealed.
type Persister interface {
	Persist(ctx context.Context, taskID string, final *state.PipelineState, trace state.Trace) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, taskID string, final *state.PipelineState, trace state.Trace) error

func (f PersisterFunc) Persist(ctx context.Context, taskID string, final *state.PipelineState, trace state.Trace) error {
	return f(ctx, taskID, final, trace)
}

// Notifier is told once per run that the run completed.
type Notifier interface {
	OnComplete(ctx context.Context, final *state.PipelineState)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, final *state.PipelineState)

func (f NotifierFunc) OnComplete(ctx context.Context, final *state.PipelineState) {
	f(ctx, final)
}
