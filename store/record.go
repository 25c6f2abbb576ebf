package store

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Record is the persisted form of one pipeline run: the final snapshot plus
// its execution trace.
type Record struct {
	state.Snapshot
	Trace     state.Trace `json:"trace"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewRecord builds a record from a sealed state. CreatedAt is the run start,
// or now when the run never started.
func NewRecord(final *state.PipelineState, trace state.Trace, now time.Time) Record {
	created := trace.Started
	if created.IsZero() {
		created = now
	}
	return Record{
		Snapshot:  final.Snapshot(),
		Trace:     trace,
		CreatedAt: created,
		UpdatedAt: now,
	}
}

// newestFirst sorts records by CreatedAt descending, then task id, and
// applies limit.
func newestFirst(records []Record, limit int) []Record {
	slices.SortFunc(records, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskID, b.TaskID)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func encodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}
	return data, nil
}

func decodeRecord(taskID string, data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, taskID, err)
	}
	return rec, nil
}
