package workflows_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
)

func batchExecutor(t *testing.T, persisted *atomic.Int32) *pipeline.Executor {
	t.Helper()

	retries := 0
	g, err := graph.Build(graph.Definition{
		Nodes: []graph.Node{
			{ID: "in", Capability: "echo"},
			{ID: "score", Capability: "score", DependsOn: []string{"in"}, MaxRetriesNil: &retries},
			{ID: "out", Capability: "echo", DependsOn: []string{"score"}},
		},
	})
	if err != nil {
		t.Fatalf("graph.Build() failed: %v", err)
	}

	cat := capability.NewCatalog()
	if err := cat.Register("echo", capability.Static(state.PartialOutput{"ok": true})); err != nil {
		t.Fatal(err)
	}
	err = cat.RegisterFunc("score", func(_ context.Context, view state.View) (state.PartialOutput, error) {
		if fail, _ := view.Input()["fail"].(bool); fail {
			return nil, capability.Unavailable(errors.New("scorer offline"))
		}
		return state.PartialOutput{"score": 3}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultExecutorConfig()
	cfg.Observer = "noop"

	reg, err := graph.Bind(g, cat, cfg.NodeTimeout.Std())
	if err != nil {
		t.Fatalf("graph.Bind() failed: %v", err)
	}

	persister := pipeline.PersisterFunc(func(context.Context, string, *state.PipelineState, state.Trace) error {
		persisted.Add(1)
		return nil
	})

	exec, err := pipeline.New(g, reg, cfg, pipeline.WithPersister(persister))
	if err != nil {
		t.Fatalf("pipeline.New() failed: %v", err)
	}
	return exec
}

func TestRunPipelines(t *testing.T) {
	var persisted atomic.Int32
	exec := batchExecutor(t, &persisted)

	cfg := config.DefaultBatchConfig()
	cfg.Observer = "noop"
	cfg.MaxWorkers = 2

	items := []workflows.Submission{
		{TaskID: "t-1", Input: map[string]any{"text": "first"}},
		{TaskID: "t-2", Input: map[string]any{"text": "second", "fail": true}},
		{TaskID: "t-3", Input: map[string]any{"text": "third"}},
	}

	result, err := workflows.RunPipelines(context.Background(), cfg, exec, items, nil)
	if err != nil {
		t.Fatalf("RunPipelines() failed: %v", err)
	}

	if len(result.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(result.Results))
	}
	if got := result.Results[0].TaskID(); got != "t-1" {
		t.Errorf("Results[0].TaskID() = %q, want t-1", got)
	}
	if got := result.Results[1].TaskID(); got != "t-3" {
		t.Errorf("Results[1].TaskID() = %q, want t-3", got)
	}
	for _, ps := range result.Results {
		if ps.Status() != state.StatusCompleted {
			t.Errorf("task %s status = %s, want %s", ps.TaskID(), ps.Status(), state.StatusCompleted)
		}
	}

	if len(result.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(result.Errors))
	}
	taskErr := result.Errors[0]
	if taskErr.Index != 1 || taskErr.Item.TaskID != "t-2" {
		t.Errorf("failed item = %d/%s, want 1/t-2", taskErr.Index, taskErr.Item.TaskID)
	}
	if !errors.Is(taskErr.Err, workflows.ErrAborted) {
		t.Errorf("error = %v, want ErrAborted", taskErr.Err)
	}

	if got := persisted.Load(); got != 3 {
		t.Errorf("persisted %d runs, want 3", got)
	}
}

func TestRunPipelines_AllAborted(t *testing.T) {
	var persisted atomic.Int32
	exec := batchExecutor(t, &persisted)

	cfg := config.DefaultBatchConfig()
	cfg.Observer = "noop"

	items := []workflows.Submission{
		{Input: map[string]any{"fail": true}},
		{Input: map[string]any{"fail": true}},
	}

	_, err := workflows.RunPipelines(context.Background(), cfg, exec, items, nil)

	var batchErr *workflows.BatchError[workflows.Submission]
	if !errors.As(err, &batchErr) {
		t.Fatalf("error = %v, want BatchError", err)
	}
	if !errors.Is(err, workflows.ErrAborted) {
		t.Errorf("errors.Is(err, ErrAborted) = false for %v", err)
	}
}

func TestRunPipelines_Progress(t *testing.T) {
	var persisted atomic.Int32
	exec := batchExecutor(t, &persisted)

	cfg := config.DefaultBatchConfig()
	cfg.Observer = "noop"
	cfg.MaxWorkers = 1

	var reported []string
	progress := func(completed, total int, final *state.PipelineState) {
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		if !final.Status().Terminal() {
			t.Errorf("task %s reported with status %s", final.TaskID(), final.Status())
		}
		reported = append(reported, final.TaskID())
		if completed != len(reported) {
			t.Errorf("completed = %d, want %d", completed, len(reported))
		}
	}

	items := []workflows.Submission{
		{TaskID: "p-1", Input: map[string]any{}},
		{TaskID: "p-2", Input: map[string]any{"fail": true}},
		{TaskID: "p-3", Input: map[string]any{}},
	}
	if _, err := workflows.RunPipelines(context.Background(), cfg, exec, items, progress); err != nil {
		t.Fatalf("RunPipelines() failed: %v", err)
	}

	if len(reported) != 2 || reported[0] != "p-1" || reported[1] != "p-3" {
		t.Errorf("progress reported %v, want [p-1 p-3]", reported)
	}
}

func TestRunPipelines_FailFastOnAbort(t *testing.T) {
	var persisted atomic.Int32
	exec := batchExecutor(t, &persisted)

	failFast := true
	cfg := config.DefaultBatchConfig()
	cfg.Observer = "noop"
	cfg.MaxWorkers = 1
	cfg.FailFastNil = &failFast

	items := []workflows.Submission{
		{TaskID: "f-1", Input: map[string]any{"fail": true}},
		{TaskID: "f-2", Input: map[string]any{}},
	}
	result, err := workflows.RunPipelines(context.Background(), cfg, exec, items, nil)

	if !errors.Is(err, workflows.ErrAborted) {
		t.Fatalf("error = %v, want ErrAborted", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("results = %d, want 0 after fail-fast", len(result.Results))
	}
	if got := persisted.Load(); got != 1 {
		t.Errorf("persisted %d runs, want only the aborted one", got)
	}
}
