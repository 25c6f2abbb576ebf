package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/backlog/analysis"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
	"github.com/tailored-agentic-units/backlog/service"
)

var noSleep = pipeline.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
})

func newService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	cfg := service.DefaultConfig()
	cfg.Graph = "../configs/triage.yaml"
	cfg.Executor.Observer = "noop"
	cfg.Batch.Observer = "noop"

	opts = append([]service.Option{service.WithExecutorOptions(pipeline.WithSleeper(noSleep))}, opts...)
	svc, err := service.New(context.Background(), &cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func submission(text string) workflows.Submission {
	return workflows.Submission{Input: map[string]any{"text": text}}
}

func TestNew_Capabilities(t *testing.T) {
	svc := newService(t)

	assert.Contains(t, svc.Capabilities(), "aggregate.union")
	assert.Contains(t, svc.Capabilities(), "duplicates")
	assert.NotContains(t, svc.Capabilities(), "llm.risk")
	assert.Equal(t, "triage", svc.Graph().Name())
}

func TestNew_UnknownCapability(t *testing.T) {
	cfg := service.DefaultConfig()
	cfg.Graph = "../configs/triage.hcl"
	cfg.Executor.Observer = "noop"

	_, err := service.New(context.Background(), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.classify")
}

func TestNew_WithLLM(t *testing.T) {
	cfg := service.DefaultConfig()
	cfg.Graph = "../configs/triage.hcl"
	cfg.Executor.Observer = "noop"
	cfg.LLM.APIKey = "test-key"

	svc, err := service.New(context.Background(), &cfg)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	assert.Equal(t, "triage-llm", svc.Graph().Name())
	assert.Contains(t, svc.Capabilities(), "llm.risk")
}

func TestSubmit(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	final, err := svc.Submit(ctx, submission("Urgent: critical security vulnerability in checkout affects all users"))
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, final.Status())

	merged, ok := final.Output("merge")
	require.True(t, ok)
	for _, key := range []string{"confidence", "urgency", "risk", "impact", "resources"} {
		assert.Contains(t, merged, key)
	}

	rec, err := svc.Get(ctx, final.TaskID())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, rec.Status)
	assert.Contains(t, rec.Outputs["recommend"], "recommendation")
	assert.NotEmpty(t, rec.Outputs["recommend"]["next_steps"])
	assert.NotEmpty(t, rec.Trace.Records)

	understood, ok := final.Output("understand")
	require.True(t, ok)
	assert.Contains(t, understood, "domain")
	assert.Contains(t, understood, "blocks")
}

func TestSubmit_DetectsDuplicate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, submission("Export monthly reports to CSV"))
	require.NoError(t, err)

	final, err := svc.Submit(ctx, submission("export monthly reports to csv"))
	require.NoError(t, err)

	out, ok := final.Output("duplicates")
	require.True(t, ok)
	assert.Equal(t, true, out["duplicate"])
}

func TestSubmit_DegradesOnFallback(t *testing.T) {
	var calls atomic.Int32
	failing := capability.Func(func(context.Context, state.View) (state.PartialOutput, error) {
		calls.Add(1)
		return nil, capability.Unavailable(errors.New("scorer offline"))
	})
	svc := newService(t, service.WithCapability(analysis.CapRisk, failing))

	final, err := svc.Submit(context.Background(), submission("Add dark mode"))
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompletedDegraded, final.Status())
	assert.Equal(t, int32(2), calls.Load())

	merged, _ := final.Output("merge")
	assert.Equal(t, 5, merged["risk"])

	require.Len(t, final.Warnings(), 1)
	assert.Equal(t, "risk", final.Warnings()[0].Node)
}

func TestSubmit_Invalid(t *testing.T) {
	svc := newService(t)

	_, err := svc.Submit(context.Background(), workflows.Submission{TaskID: "t-1"})
	assert.ErrorIs(t, err, service.ErrInvalidSubmission)
}

func TestSubmit_StoredTaskID(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	sub := workflows.Submission{TaskID: "t-stored", Input: map[string]any{"text": "Export to CSV"}}
	_, err := svc.Submit(ctx, sub)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, sub)
	assert.ErrorIs(t, err, service.ErrDuplicateTask)
}

func TestSubmitAsync(t *testing.T) {
	release := make(chan struct{})
	gate := capability.Func(func(ctx context.Context, view state.View) (state.PartialOutput, error) {
		select {
		case <-release:
			return analysis.Intake(ctx, view)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	svc := newService(t, service.WithCapability(analysis.CapIntake, gate))
	ctx := context.Background()

	id, err := svc.SubmitAsync(ctx, workflows.Submission{TaskID: "task-async", Input: map[string]any{"text": "Add SSO"}})
	require.NoError(t, err)
	assert.Equal(t, "task-async", id)

	rec, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusExecuting, rec.Status)
	assert.Equal(t, "Add SSO", rec.Input["text"])

	_, err = svc.SubmitAsync(ctx, workflows.Submission{TaskID: "task-async", Input: map[string]any{"text": "again"}})
	assert.ErrorIs(t, err, service.ErrDuplicateTask)

	list, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, state.StatusExecuting, list[0].Status)

	close(release)

	require.Eventually(t, func() bool {
		rec, err := svc.Get(ctx, id)
		return err == nil && rec.Status == state.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGet_NotFound(t *testing.T) {
	svc := newService(t)

	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestBatch(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var progressed atomic.Int32
	result, err := svc.Batch(ctx, []workflows.Submission{
		submission("Login page crashes on submit"),
		submission("Idea: weekly digest email"),
		submission("How do I change my avatar?"),
	}, func(completed, total int, _ *state.PipelineState) {
		progressed.Add(1)
		assert.Equal(t, 3, total)
	})
	require.NoError(t, err)

	assert.Len(t, result.Results, 3)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int32(3), progressed.Load())

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestBatch_InvalidItem(t *testing.T) {
	svc := newService(t)

	_, err := svc.Batch(context.Background(), []workflows.Submission{submission("ok"), {}}, nil)
	assert.ErrorIs(t, err, service.ErrInvalidSubmission)
}

func TestBatch_DuplicateTaskIDs(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Batch(ctx, []workflows.Submission{
		{TaskID: "dup", Input: map[string]any{"text": "first"}},
		{TaskID: "dup", Input: map[string]any{"text": "second"}},
	}, nil)
	assert.ErrorIs(t, err, service.ErrDuplicateTask)

	_, err = svc.Get(ctx, "dup")
	assert.ErrorIs(t, err, service.ErrNotFound, "a rejected batch must not run any item")

	_, err = svc.Submit(ctx, workflows.Submission{TaskID: "kept", Input: map[string]any{"text": "stored"}})
	require.NoError(t, err)

	_, err = svc.Batch(ctx, []workflows.Submission{
		{TaskID: "fresh", Input: map[string]any{"text": "new"}},
		{TaskID: "kept", Input: map[string]any{"text": "overwrite"}},
	}, nil)
	assert.ErrorIs(t, err, service.ErrDuplicateTask)

	rec, err := svc.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "stored", rec.Input["text"])
}

func TestBatch_AfterClose(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Close(context.Background()))

	_, err := svc.Batch(context.Background(), []workflows.Submission{submission("late")}, nil)
	assert.ErrorIs(t, err, service.ErrClosed)
}

func TestBatch_ItemsVisibleWhileRunning(t *testing.T) {
	release := make(chan struct{})
	gate := capability.Func(func(ctx context.Context, view state.View) (state.PartialOutput, error) {
		select {
		case <-release:
			return analysis.Intake(ctx, view)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	svc := newService(t, service.WithCapability(analysis.CapIntake, gate))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Batch(ctx, []workflows.Submission{
			{TaskID: "b-1", Input: map[string]any{"text": "Export fails"}},
			{TaskID: "b-2", Input: map[string]any{"text": "Add SSO"}},
		}, nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		rec, err := svc.Get(ctx, "b-2")
		return err == nil && rec.Status == state.StatusExecuting
	}, 5*time.Second, 5*time.Millisecond)

	_, err := svc.SubmitAsync(ctx, workflows.Submission{TaskID: "b-1", Input: map[string]any{"text": "again"}})
	assert.ErrorIs(t, err, service.ErrDuplicateTask)

	close(release)
	require.NoError(t, <-done)

	for _, id := range []string{"b-1", "b-2"} {
		rec, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, state.StatusCompleted, rec.Status, id)
	}
}

func TestSubmit_ConcurrentSameTaskID(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	const callers = 8
	var succeeded, rejected atomic.Int32
	var wg sync.WaitGroup
	for range callers {
		wg.Go(func() {
			_, err := svc.Submit(ctx, workflows.Submission{TaskID: "same", Input: map[string]any{"text": "race"}})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, service.ErrDuplicateTask):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
}

func TestClose(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Close(context.Background()))

	_, err := svc.Submit(context.Background(), submission("late"))
	assert.ErrorIs(t, err, service.ErrClosed)

	assert.ErrorIs(t, svc.Close(context.Background()), service.ErrClosed)
}

func TestClose_CancelsBackgroundRuns(t *testing.T) {
	svc := newService(t, service.WithCapability(analysis.CapIntake, capability.Func(
		func(ctx context.Context, _ state.View) (state.PartialOutput, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)))

	id, err := svc.SubmitAsync(context.Background(), submission("never finishes"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Close(ctx))

	rec, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusAborted, rec.Status)
}
