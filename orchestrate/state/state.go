package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// PipelineState is the per-run record of input, node outputs, and status.
//
// PipelineState has no internal locking. A single executor owns it for the
// duration of a run; other readers must wait until the run returns.
type PipelineState struct {
	taskID   string
	input    map[string]any
	outputs  map[string]PartialOutput
	groups   map[string]PartialOutput
	records  map[string]*ExecutionRecord
	order    []string
	events   []Event
	warnings []Warning
	status   Status
	started  time.Time
	finished time.Time
}

// New creates an Initialized state for one input item. An empty taskID is
// replaced with a random UUID. The input is deep-copied.
func New(taskID string, input map[string]any) *PipelineState {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	if input == nil {
		input = map[string]any{}
	}
	return &PipelineState{
		taskID:  taskID,
		input:   copyMap(input),
		outputs: make(map[string]PartialOutput),
		groups:  make(map[string]PartialOutput),
		records: make(map[string]*ExecutionRecord),
		status:  StatusInitialized,
	}
}

func (s *PipelineState) TaskID() string { return s.taskID }

// Input returns a deep copy of the input payload.
func (s *PipelineState) Input() map[string]any { return copyMap(s.input) }

func (s *PipelineState) Status() Status { return s.status }

// Sealed reports whether the state reached a terminal status.
func (s *PipelineState) Sealed() bool { return s.status.Terminal() }

// Output returns a copy of the output written by node.
func (s *PipelineState) Output(node string) (PartialOutput, bool) {
	out, ok := s.outputs[node]
	if !ok {
		return nil, false
	}
	return out.Clone(), true
}

// Outputs returns a copy of every node output keyed by node id.
func (s *PipelineState) Outputs() map[string]PartialOutput {
	out := make(map[string]PartialOutput, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v.Clone()
	}
	return out
}

// GroupOutput returns the merged output of a concurrent group.
func (s *PipelineState) GroupOutput(group string) (PartialOutput, bool) {
	out, ok := s.groups[group]
	if !ok {
		return nil, false
	}
	return out.Clone(), true
}

// GroupOutputs returns a copy of every merged group output keyed by tag.
func (s *PipelineState) GroupOutputs() map[string]PartialOutput {
	out := make(map[string]PartialOutput, len(s.groups))
	for k, v := range s.groups {
		out[k] = v.Clone()
	}
	return out
}

// Events returns the chronological execution trail.
func (s *PipelineState) Events() []Event { return slices.Clone(s.events) }

// Warnings returns the per-node warnings in the order they were raised.
func (s *PipelineState) Warnings() []Warning { return slices.Clone(s.warnings) }

// Record returns the execution record for node.
func (s *PipelineState) Record(node string) (ExecutionRecord, bool) {
	r, ok := s.records[node]
	if !ok {
		return ExecutionRecord{}, false
	}
	return r.clone(), true
}

// Records returns every execution record in execution order.
func (s *PipelineState) Records() []ExecutionRecord {
	out := make([]ExecutionRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].clone())
	}
	return out
}

// Begin moves the state to Executing and registers every node as Pending.
// nodes fixes the order in which records are reported.
func (s *PipelineState) Begin(nodes []Pending, at time.Time) error {
	if s.Sealed() {
		return ErrSealed
	}
	if !s.status.canTransition(StatusExecuting) {
		return fmt.Errorf("%w: pipeline %s: %s -> %s", ErrInvalidTransition, s.taskID, s.status, StatusExecuting)
	}
	for _, n := range nodes {
		rec := NewRecord(n.Node, n.Group, n.Capability)
		s.records[n.Node] = &rec
		s.order = append(s.order, n.Node)
	}
	s.status = StatusExecuting
	s.started = at
	s.events = append(s.events, Event{Time: at, Kind: EventPipelineStarted})
	return nil
}

// Pending identifies a node registered by Begin.
type Pending struct {
	Node       string
	Group      string
	Capability string
}

// Commit stores the final record of a node together with its output and the
// trail events produced while it ran. A nil output leaves the node's key
// absent. Each node commits at most once.
func (s *PipelineState) Commit(rec ExecutionRecord, out PartialOutput, events []Event) error {
	if s.Sealed() {
		return ErrSealed
	}
	if _, ok := s.records[rec.Node]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, rec.Node)
	}
	if _, ok := s.outputs[rec.Node]; ok {
		return fmt.Errorf("%w: %s", ErrOutputExists, rec.Node)
	}
	if !rec.Status.Terminal() {
		return fmt.Errorf("%w: node %s committed as %s", ErrInvalidTransition, rec.Node, rec.Status)
	}

	stored := rec.clone()
	s.records[rec.Node] = &stored
	if out != nil {
		s.outputs[rec.Node] = out.Clone()
	}
	s.events = append(s.events, events...)
	return nil
}

// Warn appends a warning to the trace.
func (s *PipelineState) Warn(w Warning) error {
	if s.Sealed() {
		return ErrSealed
	}
	s.warnings = append(s.warnings, w)
	return nil
}

// Append adds an event to the trail.
func (s *PipelineState) Append(e Event) error {
	if s.Sealed() {
		return ErrSealed
	}
	s.events = append(s.events, e)
	return nil
}

// SetGroupOutput records the merged output of a concurrent group.
func (s *PipelineState) SetGroupOutput(group string, out PartialOutput) error {
	if s.Sealed() {
		return ErrSealed
	}
	if _, ok := s.groups[group]; ok {
		return fmt.Errorf("%w: group %s", ErrOutputExists, group)
	}
	s.groups[group] = out.Clone()
	return nil
}

// Finish moves the state to a terminal status and seals it.
func (s *PipelineState) Finish(status Status, at time.Time) error {
	if s.Sealed() {
		return ErrSealed
	}
	if !s.status.canTransition(status) {
		return fmt.Errorf("%w: pipeline %s: %s -> %s", ErrInvalidTransition, s.taskID, s.status, status)
	}
	s.events = append(s.events, Event{Time: at, Kind: EventPipelineFinished, Detail: string(status)})
	s.status = status
	s.finished = at
	return nil
}

// View builds the read-only view handed to a capability. Only the outputs
// of deps that were actually written are included.
func (s *PipelineState) View(deps []string) View {
	outputs := make(map[string]PartialOutput, len(deps))
	for _, d := range deps {
		if out, ok := s.outputs[d]; ok {
			outputs[d] = out
		}
	}
	return NewView(s.taskID, s.input, outputs)
}

// Trace returns the execution trace for the run so far.
func (s *PipelineState) Trace() Trace {
	return Trace{
		TaskID:   s.taskID,
		Status:   s.status,
		Started:  s.started,
		Finished: s.finished,
		Records:  s.Records(),
		Warnings: s.Warnings(),
		Events:   s.Events(),
	}
}

// Snapshot is the serializable form of a PipelineState.
type Snapshot struct {
	TaskID   string                   `json:"task_id"`
	Status   Status                   `json:"status"`
	Input    map[string]any           `json:"input"`
	Outputs  map[string]PartialOutput `json:"outputs"`
	Groups   map[string]PartialOutput `json:"groups,omitempty"`
	Warnings []Warning                `json:"warnings"`
}

// Snapshot returns a detached copy suitable for encoding.
func (s *PipelineState) Snapshot() Snapshot {
	warnings := s.Warnings()
	if warnings == nil {
		warnings = []Warning{}
	}
	return Snapshot{
		TaskID:   s.taskID,
		Status:   s.status,
		Input:    s.Input(),
		Outputs:  s.Outputs(),
		Groups:   s.GroupOutputs(),
		Warnings: warnings,
	}
}

func (s *PipelineState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func (r ExecutionRecord) clone() ExecutionRecord {
	r.History = slices.Clone(r.History)
	return r
}

// OutputKeys returns the ids of nodes that wrote an output, sorted.
func (s *PipelineState) OutputKeys() []string {
	return slices.Sorted(maps.Keys(s.outputs))
}
