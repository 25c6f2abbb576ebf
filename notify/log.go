package notify

import (
	"context"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// EventTaskNotify is the observer event emitted by LogNotifier.
const EventTaskNotify observability.EventType = "task.notify"

// LogNotifier reports completions as observer events. Aborted runs are
// errors, degraded runs warnings.
type LogNotifier struct {
	observer observability.Observer
}

// NewLogNotifier creates a LogNotifier. A nil observer discards events.
func NewLogNotifier(obs observability.Observer) *LogNotifier {
	return &LogNotifier{observer: observability.OrNoOp(obs)}
}

func (n *LogNotifier) OnComplete(ctx context.Context, final *state.PipelineState) {
	level := observability.LevelInfo
	switch final.Status() {
	case state.StatusCompletedDegraded:
		level = observability.LevelWarning
	case state.StatusAborted:
		level = observability.LevelError
	}

	n.observer.OnEvent(ctx, observability.NewEvent(EventTaskNotify, level, "notify.log", map[string]any{
		"task_id":  final.TaskID(),
		"status":   string(final.Status()),
		"outputs":  final.OutputKeys(),
		"warnings": len(final.Warnings()),
	}))
}
