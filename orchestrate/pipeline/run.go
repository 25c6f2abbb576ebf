package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/aggregate"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// run is the controlling flow of one Executor.Run call. Only its methods
// write to ps.
type run struct {
	exec     *Executor
	ps       *state.PipelineState
	degraded bool
	aborted  bool
}

func (r *run) status() state.Status {
	switch {
	case r.aborted:
		return state.StatusAborted
	case r.degraded:
		return state.StatusCompletedDegraded
	default:
		return state.StatusCompleted
	}
}

func (r *run) view(id string) state.View {
	n, _ := r.exec.graph.Node(id)
	return r.ps.View(n.DependsOn)
}

func (r *run) runNode(ctx context.Context, id string) {
	res := r.exec.execute(ctx, id, r.view(id))
	r.commit(res)
}

// runGroup dispatches every member of stage concurrently and blocks until all
// of them reach an outcome. Members are not cancelled when a sibling fails.
func (r *run) runGroup(ctx context.Context, stage graph.Stage) {
	e := r.exec
	members := stage.Nodes

	views := make([]state.View, len(members))
	for i, id := range members {
		views[i] = r.view(id)
	}

	limit := e.cfg.GroupLimit(len(members))
	dispatched := time.Now()
	_ = r.ps.Append(state.Event{
		Time:  dispatched,
		Kind:  state.EventGroupDispatched,
		Group: stage.Group,
	})
	e.observer.OnEvent(ctx, observability.NewEvent(EventGroupDispatch, observability.LevelVerbose, e.source(), map[string]any{
		"task_id": r.ps.TaskID(),
		"group":   stage.Group,
		"members": members,
		"limit":   limit,
	}))

	results := make([]nodeResult, len(members))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range members {
		g.Go(func() error {
			results[i] = e.execute(ctx, id, views[i])
			return nil
		})
	}
	_ = g.Wait()

	outputs := make(map[string]state.PartialOutput, len(members))
	for _, res := range results {
		r.commit(res)
		if res.out != nil {
			outputs[res.rec.Node] = res.out
		}
	}

	merged := aggregate.Merge(outputs)
	if err := r.ps.SetGroupOutput(stage.Group, merged); err != nil {
		r.fail(stage.Group, err)
	}

	joined := time.Now()
	elapsed := joined.Sub(dispatched)
	_ = r.ps.Append(state.Event{
		Time:   joined,
		Kind:   state.EventGroupJoined,
		Group:  stage.Group,
		Detail: elapsed.String(),
	})
	e.recordGroup(ctx, stage.Group, elapsed)
	e.observer.OnEvent(ctx, observability.NewEvent(EventGroupJoin, observability.LevelVerbose, e.source(), map[string]any{
		"task_id":     r.ps.TaskID(),
		"group":       stage.Group,
		"keys":        merged.Keys(),
		"duration_ms": elapsed.Milliseconds(),
	}))
}

func (r *run) commit(res nodeResult) {
	if err := r.ps.Commit(res.rec, res.out, res.events); err != nil {
		r.fail(res.rec.Node, err)
		return
	}
	if res.warning != nil {
		_ = r.ps.Warn(*res.warning)
		r.degraded = true
	}
	if res.abort {
		r.aborted = true
	}
}

// fail aborts the run on a state mutation error. These only occur when the
// executor itself breaks the state contract.
func (r *run) fail(node string, err error) {
	_ = r.ps.Warn(state.Warning{
		Node:    node,
		Kind:    string(capability.KindInternal),
		Message: err.Error(),
	})
	r.aborted = true
}

// cancel aborts the run when the pipeline context ends between stages.
func (r *run) cancel(err error) {
	_ = r.ps.Append(state.Event{
		Time:   time.Now(),
		Kind:   state.EventPipelineCanceled,
		Detail: err.Error(),
	})
	_ = r.ps.Warn(state.Warning{
		Kind:    string(capability.KindCanceled),
		Message: "pipeline canceled before all stages ran: " + err.Error(),
	})
	r.aborted = true
}
