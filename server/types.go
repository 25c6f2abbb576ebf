package server

import (
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SubmitRequest is the body of POST /v1/tasks.
type SubmitRequest struct {
	TaskID string         `json:"task_id,omitempty"`
	Input  map[string]any `json:"input" binding:"required"`
}

// SubmitResponse acknowledges an asynchronous submission.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ListResponse is the body of GET /v1/tasks.
type ListResponse struct {
	Tasks []store.Record `json:"tasks"`
	Count int            `json:"count"`
}

// GraphResponse describes the graph the service runs.
type GraphResponse struct {
	Name   string        `json:"name"`
	Entry  string        `json:"entry"`
	Exit   string        `json:"exit"`
	Order  []string      `json:"order"`
	Stages []graph.Stage `json:"stages"`
	Nodes  []graph.Node  `json:"nodes"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}
