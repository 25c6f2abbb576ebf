package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

var (
	tracer = otel.Tracer("backlog.pipeline")
	meter  = otel.Meter("backlog.pipeline")
)

// initMetrics lazily creates the executor's instruments. Failures are logged
// and leave the affected instrument nil.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.runsTotal, err = meter.Int64Counter("backlog_pipeline_runs_total",
			metric.WithDescription("Number of completed pipeline runs by status"),
		)
		if err != nil {
			initErrors = append(initErrors, "runs_total: "+err.Error())
		}

		e.runLatency, err = meter.Float64Histogram("backlog_pipeline_duration_seconds",
			metric.WithDescription("Wall-clock time of a pipeline run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		e.nodeLatency, err = meter.Float64Histogram("backlog_node_duration_seconds",
			metric.WithDescription("Time from first attempt to outcome for each node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeRetries, err = meter.Int64Counter("backlog_node_retries_total",
			metric.WithDescription("Number of node retries"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_retries: "+err.Error())
		}

		e.groupLatency, err = meter.Float64Histogram("backlog_group_duration_seconds",
			metric.WithDescription("Time from group dispatch to join"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "group_latency: "+err.Error())
		}

		e.activeNodes, err = meter.Int64UpDownCounter("backlog_active_nodes",
			metric.WithDescription("Number of nodes currently invoking a capability"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_nodes: "+err.Error())
		}

		if len(initErrors) > 0 {
			slog.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

func (e *Executor) recordRun(ctx context.Context, status state.Status, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("graph", e.graph.Name()),
		attribute.String("status", string(status)),
	)
	if e.runsTotal != nil {
		e.runsTotal.Add(ctx, 1, attrs)
	}
	if e.runLatency != nil {
		e.runLatency.Record(ctx, d.Seconds(), attrs)
	}
}

func (e *Executor) recordNode(ctx context.Context, rec state.ExecutionRecord) {
	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, rec.Duration().Seconds(), metric.WithAttributes(
			attribute.String("node", rec.Node),
			attribute.String("outcome", string(rec.Status)),
		))
	}
}

func (e *Executor) recordRetry(ctx context.Context, node string) {
	if e.nodeRetries != nil {
		e.nodeRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node)))
	}
}

func (e *Executor) recordGroup(ctx context.Context, group string, d time.Duration) {
	if e.groupLatency != nil {
		e.groupLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("group", group)))
	}
}

func (e *Executor) trackActive(ctx context.Context, delta int64) {
	if e.activeNodes != nil {
		e.activeNodes.Add(ctx, delta)
	}
}
