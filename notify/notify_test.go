package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/backlog/notify"
	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

func finished(t *testing.T, status state.Status) *state.PipelineState {
	t.Helper()
	ps := state.New("task-1", map[string]any{"text": "export to csv please"})
	now := time.Now()
	require.NoError(t, ps.Begin([]state.Pending{{Node: "classify"}}, now))

	rec, ok := ps.Record("classify")
	require.True(t, ok)
	require.NoError(t, rec.Transition(state.NodeRunning, now))
	require.NoError(t, rec.Transition(state.NodeSucceeded, now))
	require.NoError(t, ps.Commit(rec, state.PartialOutput{"category": "request"}, nil))
	if status != state.StatusCompleted {
		require.NoError(t, ps.Warn(state.Warning{Node: "risk", Outcome: state.NodeFailedFinal, Message: "boom"}))
	}
	require.NoError(t, ps.Finish(status, now))
	return ps
}

type recorder struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recorder) OnEvent(_ context.Context, e observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestLogNotifier_LevelsByStatus(t *testing.T) {
	tests := []struct {
		status state.Status
		level  observability.Level
	}{
		{state.StatusCompleted, observability.LevelInfo},
		{state.StatusCompletedDegraded, observability.LevelWarning},
		{state.StatusAborted, observability.LevelError},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			rec := &recorder{}
			notify.NewLogNotifier(rec).OnComplete(context.Background(), finished(t, tt.status))

			require.Len(t, rec.events, 1)
			e := rec.events[0]
			assert.Equal(t, notify.EventTaskNotify, e.Type)
			assert.Equal(t, tt.level, e.Level)
			assert.Equal(t, "task-1", e.Data["task_id"])
			assert.Equal(t, string(tt.status), e.Data["status"])
			assert.Equal(t, []string{"classify"}, e.Data["outputs"])
		})
	}
}

func TestLogNotifier_NilObserver(t *testing.T) {
	assert.NotPanics(t, func() {
		notify.NewLogNotifier(nil).OnComplete(context.Background(), finished(t, state.StatusCompleted))
	})
}

func TestSocketIONotifier_EmitsSummary(t *testing.T) {
	var gotEvent string
	var gotPayload any
	emit := func(event string, payload any) {
		gotEvent = event
		gotPayload = payload
	}

	n := notify.NewSocketIONotifier(emit, "", nil)
	n.OnComplete(context.Background(), finished(t, state.StatusCompletedDegraded))

	assert.Equal(t, notify.EventTaskCompleted, gotEvent)
	summary, ok := gotPayload.(notify.Summary)
	require.True(t, ok, "payload type %T", gotPayload)
	assert.Equal(t, "task-1", summary.TaskID)
	assert.Equal(t, state.StatusCompletedDegraded, summary.Status)
	assert.Equal(t, "request", summary.Outputs["classify"]["category"])
	assert.Len(t, summary.Warnings, 1)
	assert.NoError(t, n.Close())
}

func TestSocketIONotifier_CustomEvent(t *testing.T) {
	var gotEvent string
	n := notify.NewSocketIONotifier(func(event string, _ any) { gotEvent = event }, "backlog.done", nil)
	n.OnComplete(context.Background(), finished(t, state.StatusCompleted))
	assert.Equal(t, "backlog.done", gotEvent)
}

func TestDialSocketIO_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := notify.DialSocketIO(ctx, notify.SocketIOConfig{URL: "http://127.0.0.1:1/socket.io/"}, nil)
	require.Error(t, err)
}

type closingNotifier struct {
	calls  int
	closed bool
	err    error
}

func (c *closingNotifier) OnComplete(context.Context, *state.PipelineState) { c.calls++ }

func (c *closingNotifier) Close() error {
	c.closed = true
	return c.err
}

func TestMulti(t *testing.T) {
	first := &closingNotifier{}
	second := &closingNotifier{err: errors.New("disconnect failed")}
	var fnCalls int
	fn := pipeline.NotifierFunc(func(context.Context, *state.PipelineState) { fnCalls++ })

	m := notify.NewMulti(first, nil, fn, second)
	assert.Equal(t, 3, m.Len())

	m.OnComplete(context.Background(), finished(t, state.StatusCompleted))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, fnCalls)

	err := m.Close()
	assert.True(t, first.closed)
	assert.True(t, second.closed)
	assert.ErrorContains(t, err, "disconnect failed")
}
