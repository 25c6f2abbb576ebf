package state_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

func begin(t *testing.T, ps *state.PipelineState, nodes ...string) {
	t.Helper()
	pending := make([]state.Pending, len(nodes))
	for i, n := range nodes {
		pending[i] = state.Pending{Node: n}
	}
	if err := ps.Begin(pending, time.Now()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
}

func succeeded(t *testing.T, node string) state.ExecutionRecord {
	t.Helper()
	rec := state.NewRecord(node, "", "")
	now := time.Now()
	if err := rec.Transition(state.NodeRunning, now); err != nil {
		t.Fatal(err)
	}
	if err := rec.Transition(state.NodeSucceeded, now); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestNew_GeneratesTaskID(t *testing.T) {
	ps := state.New("", nil)
	if ps.TaskID() == "" {
		t.Fatal("expected generated task id")
	}
	if ps.Status() != state.StatusInitialized {
		t.Errorf("expected Initialized, got %s", ps.Status())
	}

	named := state.New("task-1", nil)
	if named.TaskID() != "task-1" {
		t.Errorf("expected task-1, got %s", named.TaskID())
	}
}

func TestNew_InputIsCopied(t *testing.T) {
	input := map[string]any{"meta": map[string]any{"source": "api"}}
	ps := state.New("t", input)

	input["meta"].(map[string]any)["source"] = "mutated"

	got := ps.Input()["meta"].(map[string]any)["source"]
	if got != "api" {
		t.Errorf("input aliased caller map: got %v", got)
	}

	got2 := ps.Input()
	got2["meta"].(map[string]any)["source"] = "again"
	if ps.Input()["meta"].(map[string]any)["source"] != "api" {
		t.Error("Input() returned live map")
	}
}

func TestCommit_WriteOnce(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps, "a")

	if err := ps.Commit(succeeded(t, "a"), state.PartialOutput{"risk": 7}, nil); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	err := ps.Commit(succeeded(t, "a"), state.PartialOutput{"risk": 1}, nil)
	if !errors.Is(err, state.ErrOutputExists) {
		t.Fatalf("expected ErrOutputExists, got %v", err)
	}

	out, _ := ps.Output("a")
	if out["risk"] != 7 {
		t.Errorf("output overwritten: %v", out)
	}
}

func TestCommit_Errors(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps, "a")

	tests := []struct {
		name string
		rec  state.ExecutionRecord
		want error
	}{
		{"unknown node", succeeded(t, "zzz"), state.ErrUnknownNode},
		{"non-terminal record", state.NewRecord("a", "", ""), state.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Commit(tt.rec, state.PartialOutput{}, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCommit_NilOutputLeavesKeyAbsent(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps, "a")

	rec := state.NewRecord("a", "", "")
	_ = rec.Transition(state.NodeRunning, time.Now())
	_ = rec.Transition(state.NodeFailed, time.Now())
	_ = rec.Transition(state.NodeFailedFinal, time.Now())

	if err := ps.Commit(rec, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := ps.Output("a"); ok {
		t.Error("expected no output for failed node")
	}
	got, _ := ps.Record("a")
	if got.Outcome() != state.NodeFailedFinal {
		t.Errorf("expected FailedFinal, got %s", got.Outcome())
	}
}

func TestFinish_Seals(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps, "a", "b")

	if err := ps.Finish(state.StatusCompleted, time.Now()); err != nil {
		t.Fatal(err)
	}
	if !ps.Sealed() {
		t.Fatal("expected sealed state")
	}

	checks := map[string]error{
		"commit": ps.Commit(succeeded(t, "b"), state.PartialOutput{}, nil),
		"warn":   ps.Warn(state.Warning{Node: "b"}),
		"append": ps.Append(state.Event{Kind: state.EventNodeStarted}),
		"group":  ps.SetGroupOutput("g", state.PartialOutput{}),
		"finish": ps.Finish(state.StatusAborted, time.Now()),
		"begin":  ps.Begin(nil, time.Now()),
	}
	for name, err := range checks {
		if !errors.Is(err, state.ErrSealed) {
			t.Errorf("%s: expected ErrSealed, got %v", name, err)
		}
	}
}

func TestPipelineTransitions(t *testing.T) {
	ps := state.New("t", nil)

	if err := ps.Finish(state.StatusCompleted, time.Now()); !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("Initialized -> Completed: expected ErrInvalidTransition, got %v", err)
	}

	begin(t, ps)
	if err := ps.Begin(nil, time.Now()); !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("Executing -> Executing: expected ErrInvalidTransition, got %v", err)
	}
	if err := ps.Finish(state.StatusExecuting, time.Now()); !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("Executing -> Executing via Finish: expected ErrInvalidTransition, got %v", err)
	}
	if err := ps.Finish(state.StatusCompletedDegraded, time.Now()); err != nil {
		t.Errorf("Executing -> CompletedDegraded: %v", err)
	}
}

func TestSetGroupOutput_WriteOnce(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps)

	if err := ps.SetGroupOutput("scoring", state.PartialOutput{"risk": 7}); err != nil {
		t.Fatal(err)
	}
	if err := ps.SetGroupOutput("scoring", state.PartialOutput{}); !errors.Is(err, state.ErrOutputExists) {
		t.Errorf("expected ErrOutputExists, got %v", err)
	}
	got, ok := ps.GroupOutput("scoring")
	if !ok || got["risk"] != 7 {
		t.Errorf("unexpected group output %v", got)
	}
}

func TestView_OnlyDeclaredDependencies(t *testing.T) {
	ps := state.New("t", map[string]any{"content": "crash"})
	begin(t, ps, "a", "b")
	_ = ps.Commit(succeeded(t, "a"), state.PartialOutput{"risk": 7}, nil)
	_ = ps.Commit(succeeded(t, "b"), state.PartialOutput{"impact": 4}, nil)

	view := ps.View([]string{"a"})

	if _, ok := view.Output("b"); ok {
		t.Error("view exposes undeclared dependency")
	}
	if _, ok := view.Lookup("impact"); ok {
		t.Error("view exposes undeclared key")
	}
	risk, ok := view.Float("risk")
	if !ok || risk != 7 {
		t.Errorf("expected risk 7, got %v (ok=%v)", risk, ok)
	}
	if s, _ := view.InputString("content"); s != "crash" {
		t.Errorf("expected input content, got %q", s)
	}
}

func TestView_IsDetached(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps, "a")
	_ = ps.Commit(succeeded(t, "a"), state.PartialOutput{
		"tags": []any{"x"},
		"meta": map[string]any{"k": "v"},
	}, nil)

	view := ps.View([]string{"a"})
	out, _ := view.Output("a")
	out["tags"].([]any)[0] = "mutated"
	out["meta"].(map[string]any)["k"] = "mutated"
	out["new"] = true

	live, _ := ps.Output("a")
	if live["tags"].([]any)[0] != "x" || live["meta"].(map[string]any)["k"] != "v" {
		t.Errorf("view aliases live state: %v", live)
	}
	if _, ok := live["new"]; ok {
		t.Error("view mutation leaked into state")
	}
}

func TestView_AbsentKeyIsUnknown(t *testing.T) {
	view := state.NewView("t", nil, map[string]state.PartialOutput{
		"a": {"label": "bug"},
	})

	if _, ok := view.Float("risk"); ok {
		t.Error("absent key reported as known")
	}
	if _, ok := view.Float("label"); ok {
		t.Error("non-numeric key reported as float")
	}
	if s, ok := view.String("label"); !ok || s != "bug" {
		t.Errorf("expected bug, got %q", s)
	}
}

func TestView_Merged(t *testing.T) {
	view := state.NewView("t", nil, map[string]state.PartialOutput{
		"r1": {"risk": 7},
		"r2": {"impact": 4},
	})

	merged := view.Merged()
	if len(merged) != 2 || merged["risk"] != 7 || merged["impact"] != 4 {
		t.Errorf("unexpected merge %v", merged)
	}
}

func TestSnapshot_JSON(t *testing.T) {
	ps := state.New("t-1", map[string]any{"id": 1})
	begin(t, ps, "a")
	_ = ps.Commit(succeeded(t, "a"), state.PartialOutput{"risk": 7}, nil)
	_ = ps.Warn(state.Warning{Node: "b", Outcome: state.NodeFailedWithFallback, Message: "boom"})
	_ = ps.Finish(state.StatusCompletedDegraded, time.Now())

	data, err := json.Marshal(ps)
	if err != nil {
		t.Fatal(err)
	}

	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TaskID != "t-1" || snap.Status != state.StatusCompletedDegraded {
		t.Errorf("unexpected snapshot header %+v", snap)
	}
	if snap.Outputs["a"]["risk"] != float64(7) {
		t.Errorf("unexpected outputs %v", snap.Outputs)
	}
	if len(snap.Warnings) != 1 || snap.Warnings[0].Node != "b" {
		t.Errorf("unexpected warnings %v", snap.Warnings)
	}
}

func TestTrace(t *testing.T) {
	ps := state.New("t", nil)
	begin(t, ps, "b", "a")
	_ = ps.Commit(succeeded(t, "a"), state.PartialOutput{}, nil)
	_ = ps.Commit(succeeded(t, "b"), state.PartialOutput{}, nil)
	_ = ps.Finish(state.StatusCompleted, time.Now())

	trace := ps.Trace()
	if len(trace.Records) != 2 || trace.Records[0].Node != "b" {
		t.Errorf("records not in registration order: %+v", trace.Records)
	}
	outcomes := trace.Outcomes()
	if outcomes["a"] != state.NodeSucceeded {
		t.Errorf("unexpected outcome %s", outcomes["a"])
	}
	if trace.Events[0].Kind != state.EventPipelineStarted {
		t.Errorf("expected start event first, got %s", trace.Events[0].Kind)
	}
	if trace.Events[len(trace.Events)-1].Kind != state.EventPipelineFinished {
		t.Error("expected finish event last")
	}
}
