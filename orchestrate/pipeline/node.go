package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// RouteKey is the reserved output key a capability may use to attach a
// routing hint. The executor removes it from the stored output and records
// it on the node's ExecutionRecord.
const RouteKey = "_route"

var (
	ErrUndeclaredOutput = errors.New("output key not declared")
	ErrInvalidRoute     = errors.New("routing hint must be a string")
)

// nodeResult is everything a node run hands back to the controlling flow.
type nodeResult struct {
	rec     state.ExecutionRecord
	out     state.PartialOutput
	events  []state.Event
	warning *state.Warning
	abort   bool
}

// move transitions the record and appends the matching trail event. The
// executor only requests transitions the node state machine allows, so an
// error here is a programming error.
func (r *nodeResult) move(to state.NodeStatus, kind state.EventKind, detail string) {
	at := time.Now()
	if err := r.rec.Transition(to, at); err != nil {
		panic(err)
	}
	r.events = append(r.events, state.Event{
		Time:    at,
		Kind:    kind,
		Node:    r.rec.Node,
		Group:   r.rec.Group,
		Attempt: r.rec.Attempts,
		Detail:  detail,
	})
}

func (r *nodeResult) warn(kind, message string) {
	r.warning = &state.Warning{
		Node:    r.rec.Node,
		Outcome: r.rec.Status,
		Kind:    kind,
		Message: message,
	}
}

// accept validates a capability output against the node definition and
// strips the routing hint.
func (r *nodeResult) accept(n graph.Node, out state.PartialOutput) (state.PartialOutput, error) {
	out = out.Clone()
	if out == nil {
		out = state.PartialOutput{}
	}

	var route string
	if v, ok := out[RouteKey]; ok {
		s, isString := v.(string)
		if !isString {
			return nil, &capability.ValidationError{Node: n.ID, Field: RouteKey, Err: ErrInvalidRoute}
		}
		route = s
		delete(out, RouteKey)
	}

	for _, key := range out.Keys() {
		if !n.Declares(key) {
			return nil, &capability.ValidationError{Node: n.ID, Field: key, Err: ErrUndeclaredOutput}
		}
	}

	r.rec.Route = route
	return out, nil
}

func missingKeys(required []string, view state.View) []string {
	var missing []string
	for _, key := range required {
		if _, ok := view.Lookup(key); !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// execute runs one node to an outcome under its failure policy. It is called
// from branch goroutines and must not touch the PipelineState.
func (e *Executor) execute(ctx context.Context, id string, view state.View) nodeResult {
	n, _ := e.graph.Node(id)
	b, _ := e.registry.Resolve(id)
	res := nodeResult{rec: state.NewRecord(id, n.Group, b.Ref)}

	if missing := missingKeys(n.Requires, view); len(missing) > 0 {
		msg := fmt.Sprintf("required keys absent: %v", missing)
		res.move(state.NodeSkipped, state.EventNodeSkipped, msg)
		res.warn("missing_input", msg)
		e.observer.OnEvent(ctx, observability.NewEvent(EventNodeSkip, observability.LevelWarning, e.source(), map[string]any{
			"task_id": view.TaskID(),
			"node":    id,
			"missing": missing,
		}))
		return res
	}

	ctx, span := tracer.Start(ctx, "pipeline.Node",
		trace.WithAttributes(
			attribute.String("node.id", id),
			attribute.String("node.group", n.Group),
			attribute.String("node.capability", b.Ref),
		),
	)
	defer span.End()

	e.attempt(ctx, n, b, view, PolicyFor(n, e.cfg.RetryBackoff.Std()), &res)

	e.recordNode(ctx, res.rec)
	span.SetAttributes(
		attribute.String("node.outcome", string(res.rec.Status)),
		attribute.Int("node.attempts", res.rec.Attempts),
	)
	if res.rec.Status == state.NodeSucceeded {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, res.rec.Error)
	}
	return res
}

func (e *Executor) attempt(ctx context.Context, n graph.Node, b capability.Binding, view state.View, policy FailurePolicy, res *nodeResult) {
	taskID := view.TaskID()

	for {
		res.move(state.NodeRunning, state.EventNodeStarted, "")
		e.observer.OnEvent(ctx, observability.NewEvent(EventNodeStart, observability.LevelVerbose, e.source(), map[string]any{
			"task_id": taskID,
			"node":    n.ID,
			"attempt": res.rec.Attempts,
		}))

		e.trackActive(ctx, 1)
		out, err := capability.Invoke(ctx, n.ID, b.Capability, view, b.Timeout)
		e.trackActive(ctx, -1)
		if err == nil {
			out, err = res.accept(n, out)
		}

		if err == nil {
			res.out = out
			res.move(state.NodeSucceeded, state.EventNodeSucceeded, res.rec.Route)
			e.observer.OnEvent(ctx, observability.NewEvent(EventNodeComplete, observability.LevelVerbose, e.source(), map[string]any{
				"task_id":  taskID,
				"node":     n.ID,
				"attempts": res.rec.Attempts,
				"keys":     out.Keys(),
			}))
			return
		}

		kind := capability.KindOf(err)
		res.rec.Error = err.Error()
		res.rec.ErrorKind = string(kind)
		res.move(state.NodeFailed, state.EventNodeFailed, err.Error())
		trace.SpanFromContext(ctx).RecordError(err)

		if kind == capability.KindCanceled || ctx.Err() != nil {
			e.cancelled(ctx, taskID, res)
			return
		}

		if !policy.CanRetry(res.rec.Retries) {
			e.exhaust(ctx, taskID, policy, res)
			return
		}

		res.move(state.NodeRetrying, state.EventNodeRetrying, string(kind))
		e.recordRetry(ctx, n.ID)
		e.observer.OnEvent(ctx, observability.NewEvent(EventNodeRetry, observability.LevelWarning, e.source(), map[string]any{
			"task_id":    taskID,
			"node":       n.ID,
			"attempt":    res.rec.Attempts,
			"error":      err.Error(),
			"error_kind": string(kind),
			"backoff_ms": policy.Backoff.Milliseconds(),
		}))

		if err := e.sleeper.Sleep(ctx, policy.Backoff); err != nil {
			res.rec.Error = err.Error()
			res.rec.ErrorKind = string(capability.KindCanceled)
			e.cancelled(ctx, taskID, res)
			return
		}
	}
}

// exhaust applies the terminal branch of the failure policy.
func (e *Executor) exhaust(ctx context.Context, taskID string, policy FailurePolicy, res *nodeResult) {
	final := policy.Exhausted()

	if final == state.NodeFailedWithFallback {
		res.out = policy.Fallback.Clone()
		res.move(final, state.EventNodeFallback, res.rec.Error)
		res.warn(res.rec.ErrorKind, res.rec.Error)
		e.observer.OnEvent(ctx, observability.NewEvent(EventNodeFallback, observability.LevelWarning, e.source(), map[string]any{
			"task_id":  taskID,
			"node":     res.rec.Node,
			"attempts": res.rec.Attempts,
			"error":    res.rec.Error,
			"fallback": res.out.Keys(),
		}))
		return
	}

	res.move(final, state.EventNodeFailedFinal, res.rec.Error)
	res.warn(res.rec.ErrorKind, res.rec.Error)
	res.abort = policy.Aborts()

	level := observability.LevelWarning
	if res.abort {
		level = observability.LevelError
	}
	e.observer.OnEvent(ctx, observability.NewEvent(EventNodeFail, level, e.source(), map[string]any{
		"task_id":  taskID,
		"node":     res.rec.Node,
		"attempts": res.rec.Attempts,
		"error":    res.rec.Error,
		"critical": policy.Critical,
	}))
}

// cancelled ends a node whose pipeline context is done. Cancellation is never
// retried and never replaced by a fallback.
func (e *Executor) cancelled(ctx context.Context, taskID string, res *nodeResult) {
	res.move(state.NodeFailedFinal, state.EventNodeFailedFinal, res.rec.Error)
	res.warn(string(capability.KindCanceled), res.rec.Error)
	res.abort = true

	e.observer.OnEvent(ctx, observability.NewEvent(EventNodeFail, observability.LevelError, e.source(), map[string]any{
		"task_id":  taskID,
		"node":     res.rec.Node,
		"attempts": res.rec.Attempts,
		"error":    res.rec.Error,
		"canceled": true,
	}))
}
