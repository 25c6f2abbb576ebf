package analysis

import (
	"context"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
	"github.com/tailored-agentic-units/backlog/store"
)

// DuplicateDetector compares a submission against recently stored tasks by
// token-set similarity.
type DuplicateDetector struct {
	store     store.Store
	threshold float64
	window    int
}

// NewDuplicateDetector creates a detector over the window most recent
// records of s. A similarity at or above threshold marks a duplicate.
func NewDuplicateDetector(s store.Store, threshold float64, window int) *DuplicateDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	if window <= 0 {
		window = 100
	}
	return &DuplicateDetector{store: s, threshold: threshold, window: window}
}

func (d *DuplicateDetector) Invoke(ctx context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}

	recent, err := d.store.List(ctx, d.window)
	if err != nil {
		return nil, capability.Unavailable(err)
	}

	words := tokens(text)
	best, bestID := 0.0, ""
	for _, rec := range recent {
		if rec.TaskID == view.TaskID() {
			continue
		}
		other, ok := rec.Input[KeyText].(string)
		if !ok {
			continue
		}
		if sim := jaccard(words, tokens(other)); sim > best {
			best, bestID = sim, rec.TaskID
		}
	}

	out := state.PartialOutput{
		"duplicate":  best >= d.threshold,
		"similarity": best,
	}
	if best >= d.threshold {
		out["duplicate_of"] = bestID
	}
	return out, nil
}
