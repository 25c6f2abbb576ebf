// Package store persists final pipeline states as task records. Drivers are
// stateless with respect to the pipeline: each call performs its own I/O and
// returns detached copies.
package store

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Store saves and retrieves task records by task id.
type Store interface {
	// Save creates or overwrites the record for rec.TaskID.
	Save(ctx context.Context, rec Record) error
	// Load returns the record for taskID or an error wrapping ErrNotFound.
	Load(ctx context.Context, taskID string) (Record, error)
	// List returns up to limit records, newest first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]Record, error)
	// Delete removes a record. Missing ids are ignored.
	Delete(ctx context.Context, taskID string) error
	// Close releases driver resources.
	Close() error
}

// Persister adapts s to the executor's persistence collaborator.
func Persister(s Store) pipeline.Persister {
	return pipeline.PersisterFunc(func(ctx context.Context, _ string, final *state.PipelineState, trace state.Trace) error {
		return s.Save(ctx, NewRecord(final, trace, time.Now()))
	})
}
