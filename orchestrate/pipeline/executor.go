package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Sentinel errors for executor misuse. Run outcomes are never errors.
var (
	ErrNilGraph       = errors.New("graph is nil")
	ErrNilRegistry    = errors.New("capability registry is nil")
	ErrNilState       = errors.New("pipeline state is nil")
	ErrNotInitialized = errors.New("pipeline state is not initialized")
)

// Executor runs a built graph. It holds no per-run state and is safe for
// concurrent Run calls with distinct PipelineStates.
type Executor struct {
	graph     *graph.Graph
	registry  *capability.Registry
	cfg       config.ExecutorConfig
	observer  observability.Observer
	persister Persister
	notifier  Notifier
	sleeper   Sleeper
	stages    []graph.Stage
	pending   []state.Pending

	metricsOnce  sync.Once
	runsTotal    metric.Int64Counter
	runLatency   metric.Float64Histogram
	nodeLatency  metric.Float64Histogram
	nodeRetries  metric.Int64Counter
	groupLatency metric.Float64Histogram
	activeNodes  metric.Int64UpDownCounter
}

// New creates an Executor for g. Every node of g must be bound in registry.
// The observer named by cfg.Observer is resolved from the observability
// registry; an empty name means no observer.
func New(g *graph.Graph, registry *capability.Registry, cfg config.ExecutorConfig, opts ...Option) (*Executor, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}

	observer := observability.Observer(observability.NoOpObserver{})
	if cfg.Observer != "" {
		obs, err := observability.GetObserver(cfg.Observer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve observer: %w", err)
		}
		observer = obs
	}

	pending := make([]state.Pending, 0, g.Len())
	for _, id := range g.Order() {
		b, err := registry.Resolve(id)
		if err != nil {
			return nil, err
		}
		n, _ := g.Node(id)
		pending = append(pending, state.Pending{Node: id, Group: n.Group, Capability: b.Ref})
	}

	e := &Executor{
		graph:    g,
		registry: registry,
		cfg:      cfg,
		observer: observer,
		sleeper:  DefaultSleeper,
		stages:   g.Stages(),
		pending:  pending,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Graph returns the graph the executor runs.
func (e *Executor) Graph() *graph.Graph { return e.graph }

func (e *Executor) source() string {
	if name := e.graph.Name(); name != "" {
		return name
	}
	return "pipeline"
}

// Run executes the graph against ps and returns it sealed.
//
// The returned error is non-nil only for misuse: a nil state or a state that
// already ran. Failures of individual nodes and pipeline timeouts are
// reported through the state's status, records, and warnings.
func (e *Executor) Run(ctx context.Context, ps *state.PipelineState) (*state.PipelineState, error) {
	if ps == nil {
		return nil, ErrNilState
	}
	if ps.Status() != state.StatusInitialized {
		return ps, fmt.Errorf("%w: %s is %s", ErrNotInitialized, ps.TaskID(), ps.Status())
	}

	e.initMetrics()

	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("task.id", ps.TaskID()),
			attribute.String("graph.name", e.graph.Name()),
			attribute.Int("graph.nodes", e.graph.Len()),
			attribute.Int("graph.stages", len(e.stages)),
		),
	)
	defer span.End()

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := e.cfg.PipelineTimeout.Std(); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	if err := ps.Begin(e.pending, start); err != nil {
		return ps, err
	}

	e.observer.OnEvent(ctx, observability.NewEvent(EventPipelineStart, observability.LevelInfo, e.source(), map[string]any{
		"task_id": ps.TaskID(),
		"nodes":   e.graph.Len(),
		"stages":  len(e.stages),
	}))

	r := &run{exec: e, ps: ps}
	for _, stage := range e.stages {
		if r.aborted {
			break
		}
		if err := runCtx.Err(); err != nil {
			r.cancel(err)
			break
		}

		if stage.Concurrent() {
			r.runGroup(runCtx, stage)
		} else {
			r.runNode(runCtx, stage.Nodes[0])
		}
	}

	status := r.status()
	finished := time.Now()
	if err := ps.Finish(status, finished); err != nil {
		return ps, err
	}

	duration := finished.Sub(start)
	e.recordRun(ctx, status, duration)
	span.SetAttributes(
		attribute.String("pipeline.status", string(status)),
		attribute.Int("pipeline.warnings", len(ps.Warnings())),
	)
	if status == state.StatusAborted {
		span.SetStatus(codes.Error, "pipeline aborted")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	level := observability.LevelInfo
	if status != state.StatusCompleted {
		level = observability.LevelWarning
	}
	e.observer.OnEvent(ctx, observability.NewEvent(EventPipelineComplete, level, e.source(), map[string]any{
		"task_id":     ps.TaskID(),
		"status":      string(status),
		"warnings":    len(ps.Warnings()),
		"duration_ms": duration.Milliseconds(),
	}))

	e.complete(context.WithoutCancel(ctx), ps)
	return ps, nil
}

// complete hands the sealed state to the collaborators. It runs on a
// context detached from the run's cancellation so an aborted run is still
// persisted.
func (e *Executor) complete(ctx context.Context, ps *state.PipelineState) {
	if e.persister != nil {
		if err := e.persister.Persist(ctx, ps.TaskID(), ps, ps.Trace()); err != nil {
			e.observer.OnEvent(ctx, observability.NewEvent(EventPersistError, observability.LevelError, e.source(), map[string]any{
				"task_id": ps.TaskID(),
				"error":   err.Error(),
			}))
		} else {
			e.observer.OnEvent(ctx, observability.NewEvent(EventPersistComplete, observability.LevelVerbose, e.source(), map[string]any{
				"task_id": ps.TaskID(),
			}))
		}
	}

	if e.notifier != nil {
		e.notifier.OnComplete(ctx, ps)
		e.observer.OnEvent(ctx, observability.NewEvent(EventNotify, observability.LevelVerbose, e.source(), map[string]any{
			"task_id": ps.TaskID(),
		}))
	}
}
