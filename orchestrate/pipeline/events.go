package pipeline

import "github.com/tailored-agentic-units/backlog/observability"

const (
	EventPipelineStart    observability.EventType = "pipeline.start"
	EventPipelineComplete observability.EventType = "pipeline.complete"
	EventGroupDispatch    observability.EventType = "group.dispatch"
	EventGroupJoin        observability.EventType = "group.join"
	EventNodeStart        observability.EventType = "node.start"
	EventNodeComplete     observability.EventType = "node.complete"
	EventNodeRetry        observability.EventType = "node.retry"
	EventNodeFallback     observability.EventType = "node.fallback"
	EventNodeFail         observability.EventType = "node.fail"
	EventNodeSkip         observability.EventType = "node.skip"
	EventPersistComplete  observability.EventType = "persist.complete"
	EventPersistError     observability.EventType = "persist.error"
	EventNotify           observability.EventType = "notify.complete"
)
