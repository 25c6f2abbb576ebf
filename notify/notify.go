// Package notify forwards finished pipeline runs to external surfaces. Every
// notifier here satisfies pipeline.Notifier and is invoked once per run.
package notify

import (
	"context"
	"errors"
	"io"

	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// EventTaskCompleted is the event name used for completion pushes.
const EventTaskCompleted = "task.completed"

// Summary is the payload sent for a finished run.
type Summary struct {
	TaskID   string                         `json:"task_id"`
	Status   state.Status                   `json:"status"`
	Outputs  map[string]state.PartialOutput `json:"outputs"`
	Warnings []state.Warning                `json:"warnings"`
}

// Summarize builds the completion payload for final.
func Summarize(final *state.PipelineState) Summary {
	snap := final.Snapshot()
	return Summary{
		TaskID:   snap.TaskID,
		Status:   snap.Status,
		Outputs:  snap.Outputs,
		Warnings: snap.Warnings,
	}
}

// Multi fans a completion out to several notifiers in order.
type Multi struct {
	notifiers []pipeline.Notifier
}

// NewMulti creates a Multi over the non-nil notifiers.
func NewMulti(notifiers ...pipeline.Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) OnComplete(ctx context.Context, final *state.PipelineState) {
	for _, n := range m.notifiers {
		n.OnComplete(ctx, final)
	}
}

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

// Close closes every wrapped notifier that holds a connection.
func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if c, ok := n.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
