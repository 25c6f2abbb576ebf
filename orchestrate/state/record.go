package state

import (
	"fmt"
	"time"
)

// ExecutionRecord is the per-node entry of the execution trace.
type ExecutionRecord struct {
	Node       string       `json:"node"`
	Group      string       `json:"group,omitempty"`
	Capability string       `json:"capability,omitempty"`
	Status     NodeStatus   `json:"status"`
	Started    time.Time    `json:"started,omitzero"`
	Finished   time.Time    `json:"finished,omitzero"`
	Attempts   int          `json:"attempts"`
	Retries    int          `json:"retries"`
	Error      string       `json:"error,omitempty"`
	ErrorKind  string       `json:"error_kind,omitempty"`
	Route      string       `json:"route,omitempty"`
	History    []NodeStatus `json:"history"`
}

// NewRecord returns a Pending record for node.
func NewRecord(node, group, capability string) ExecutionRecord {
	return ExecutionRecord{
		Node:       node,
		Group:      group,
		Capability: capability,
		Status:     NodePending,
		History:    []NodeStatus{NodePending},
	}
}

// Transition moves the record to a new status. Entering Running counts an
// attempt and stamps Started on the first one; entering a terminal status
// stamps Finished.
func (r *ExecutionRecord) Transition(to NodeStatus, at time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: node %s: %s -> %s", ErrInvalidTransition, r.Node, r.Status, to)
	}

	switch to {
	case NodeRunning:
		r.Attempts++
		if r.Started.IsZero() {
			r.Started = at
		}
	case NodeRetrying:
		r.Retries++
	}

	if to.Terminal() {
		if r.Started.IsZero() {
			r.Started = at
		}
		r.Finished = at
	}

	r.Status = to
	r.History = append(r.History, to)
	return nil
}

// Outcome returns the terminal status, or "" while the node is unresolved.
func (r ExecutionRecord) Outcome() NodeStatus {
	if r.Status.Terminal() {
		return r.Status
	}
	return ""
}

// Duration is the wall-clock time between Started and Finished.
func (r ExecutionRecord) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Warning reports a node that did not succeed without affecting the
// caller-visible error path.
type Warning struct {
	Node    string     `json:"node"`
	Outcome NodeStatus `json:"outcome"`
	Kind    string     `json:"kind,omitempty"`
	Message string     `json:"message"`
}

// EventKind classifies entries in the execution trail.
type EventKind string

const (
	EventPipelineStarted  EventKind = "pipeline_started"
	EventPipelineFinished EventKind = "pipeline_finished"
	EventPipelineCanceled EventKind = "pipeline_canceled"
	EventGroupDispatched  EventKind = "group_dispatched"
	EventGroupJoined      EventKind = "group_joined"
	EventNodeStarted      EventKind = "node_started"
	EventNodeFailed       EventKind = "node_failed"
	EventNodeRetrying     EventKind = "node_retrying"
	EventNodeSucceeded    EventKind = "node_succeeded"
	EventNodeFallback     EventKind = "node_fallback"
	EventNodeFailedFinal  EventKind = "node_failed_final"
	EventNodeSkipped      EventKind = "node_skipped"
)

// Event is one entry of the chronological execution trail.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Node    string    `json:"node,omitempty"`
	Group   string    `json:"group,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}
