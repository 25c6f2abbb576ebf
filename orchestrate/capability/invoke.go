package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

type invokeResult struct {
	out state.PartialOutput
	err error
}

// Invoke calls c for node under timeout. A zero timeout disables the
// per-node deadline.
//
// Every returned error is a *CapabilityError or *ValidationError carrying
// node. A per-node deadline yields KindTimeout; cancellation of ctx itself
// yields KindCanceled; a panic yields KindInternal. Invoke returns as soon as
// the deadline passes even if c ignores its context.
func Invoke(ctx context.Context, node string, c Capability, view state.View, timeout time.Duration) (state.PartialOutput, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: &CapabilityError{
					Node: node,
					Kind: KindInternal,
					Err:  fmt.Errorf("panic: %v", r),
				}}
			}
		}()
		out, err := c.Invoke(callCtx, view)
		done <- invokeResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, classify(ctx, callCtx, node, res.err)
		}
		return res.out, nil
	case <-callCtx.Done():
		return nil, classify(ctx, callCtx, node, callCtx.Err())
	}
}

func classify(parent, call context.Context, node string, err error) error {
	if parent.Err() != nil {
		return &CapabilityError{Node: node, Kind: KindCanceled, Err: parent.Err()}
	}
	if call.Err() == context.DeadlineExceeded {
		return &CapabilityError{Node: node, Kind: KindTimeout, Err: err}
	}
	return normalize(node, err)
}
