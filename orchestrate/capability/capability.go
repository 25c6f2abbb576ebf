package capability

import (
	"context"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Capability is a stateless unit of work bound to a pipeline node.
type Capability interface {
	Invoke(ctx context.Context, view state.View) (state.PartialOutput, error)
}

// Func adapts a plain function to Capability.
type Func func(ctx context.Context, view state.View) (state.PartialOutput, error)

func (f Func) Invoke(ctx context.Context, view state.View) (state.PartialOutput, error) {
	return f(ctx, view)
}

// Static returns a Capability that always produces a copy of out.
func Static(out state.PartialOutput) Capability {
	return Func(func(context.Context, state.View) (state.PartialOutput, error) {
		return out.Clone(), nil
	})
}
