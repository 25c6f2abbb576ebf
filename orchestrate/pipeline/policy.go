package pipeline

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// FailurePolicy is the retry and fallback rule set of one node.
type FailurePolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Fallback   state.PartialOutput
	Critical   bool
}

// PolicyFor derives the policy of n with the executor-wide backoff.
func PolicyFor(n graph.Node, backoff time.Duration) FailurePolicy {
	return FailurePolicy{
		MaxRetries: n.MaxRetries(),
		Backoff:    backoff,
		Fallback:   n.Fallback,
		Critical:   n.Critical(),
	}
}

// CanRetry reports whether another attempt is allowed after retries.
func (p FailurePolicy) CanRetry(retries int) bool {
	return retries < p.MaxRetries
}

// Exhausted returns the terminal status of a node whose retries are spent.
func (p FailurePolicy) Exhausted() state.NodeStatus {
	if p.Fallback != nil {
		return state.NodeFailedWithFallback
	}
	return state.NodeFailedFinal
}

// Aborts reports whether exhaustion aborts the pipeline.
func (p FailurePolicy) Aborts() bool {
	return p.Fallback == nil && p.Critical
}

// Sleeper waits between attempts. Implementations return ctx.Err() when the
// context ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DefaultSleeper is the production sleeper.
var DefaultSleeper Sleeper = timerSleeper{}
