package workflows

import "github.com/tailored-agentic-units/backlog/observability"

const (
	EventBatchStart     observability.EventType = "batch.start"
	EventBatchComplete  observability.EventType = "batch.complete"
	EventWorkerStart    observability.EventType = "worker.start"
	EventWorkerComplete observability.EventType = "worker.complete"
)
