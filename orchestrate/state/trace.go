package state

import "time"

// Trace is the ordered record of per-node outcomes, timings, and warnings for
// one run.
type Trace struct {
	TaskID   string            `json:"task_id"`
	Status   Status            `json:"status"`
	Started  time.Time         `json:"started,omitzero"`
	Finished time.Time         `json:"finished,omitzero"`
	Records  []ExecutionRecord `json:"records"`
	Warnings []Warning         `json:"warnings,omitempty"`
	Events   []Event           `json:"events,omitempty"`
}

// Duration is the wall-clock time of the run.
func (t Trace) Duration() time.Duration {
	if t.Started.IsZero() || t.Finished.IsZero() {
		return 0
	}
	return t.Finished.Sub(t.Started)
}

// Outcomes maps each node id to its terminal outcome.
func (t Trace) Outcomes() map[string]NodeStatus {
	out := make(map[string]NodeStatus, len(t.Records))
	for _, r := range t.Records {
		out[r.Node] = r.Outcome()
	}
	return out
}
