package service

import "github.com/tailored-agentic-units/backlog/observability"

// Service event types.
const (
	EventSubmit   observability.EventType = "service.submit"
	EventRunError observability.EventType = "service.run.error"
	EventClose    observability.EventType = "service.close"
)
