package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/aggregate"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

var noSleep = pipeline.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
})

// flaky fails its first failures calls, then returns out.
type flaky struct {
	failures int
	out      state.PartialOutput
	calls    atomic.Int32
}

func (f *flaky) Invoke(_ context.Context, _ state.View) (state.PartialOutput, error) {
	if int(f.calls.Add(1)) <= f.failures {
		return nil, capability.Unavailable(errors.New("upstream returned 503"))
	}
	return f.out.Clone(), nil
}

// sleepy returns out after d, or fails when ctx ends first.
func sleepy(d time.Duration, out state.PartialOutput) capability.Func {
	return func(ctx context.Context, _ state.View) (state.PartialOutput, error) {
		select {
		case <-time.After(d):
			return out.Clone(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func blocking(ctx context.Context, _ state.View) (state.PartialOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// exampleDef is E -> {R1, R2} -> G -> X with G bound to aggregate.union.
func exampleDef() graph.Definition {
	return graph.Definition{
		Name:  "example",
		Entry: "E",
		Exit:  "X",
		Nodes: []graph.Node{
			{ID: "E", Capability: "entry"},
			{ID: "R1", Capability: "risk", DependsOn: []string{"E"}, Group: "scoring", Outputs: []string{"risk"}},
			{ID: "R2", Capability: "impact", DependsOn: []string{"E"}, Group: "scoring", Outputs: []string{"impact"}},
			{ID: "G", Capability: aggregate.UnionName, DependsOn: []string{"R1", "R2"}},
			{ID: "X", Capability: "exit", DependsOn: []string{"G"}},
		},
	}
}

func exampleCaps() map[string]capability.Capability {
	return map[string]capability.Capability{
		"entry":  capability.Static(state.PartialOutput{"received": true}),
		"risk":   capability.Static(state.PartialOutput{"risk": 7}),
		"impact": capability.Static(state.PartialOutput{"impact": 4}),
		"exit":   capability.Static(state.PartialOutput{"done": true}),
	}
}

func testConfig() config.ExecutorConfig {
	cfg := config.DefaultExecutorConfig()
	cfg.Observer = "noop"
	cfg.RetryBackoff = config.Duration(10 * time.Millisecond)
	return cfg
}

func newExecutor(t *testing.T, def graph.Definition, caps map[string]capability.Capability, cfg config.ExecutorConfig, opts ...pipeline.Option) *pipeline.Executor {
	t.Helper()

	g, err := graph.Build(def)
	if err != nil {
		t.Fatalf("graph.Build() failed: %v", err)
	}

	cat := capability.NewCatalog()
	if err := aggregate.Register(cat); err != nil {
		t.Fatal(err)
	}
	for name, c := range caps {
		if err := cat.Register(name, c); err != nil {
			t.Fatal(err)
		}
	}

	reg, err := graph.Bind(g, cat, cfg.NodeTimeout.Std())
	if err != nil {
		t.Fatalf("graph.Bind() failed: %v", err)
	}

	opts = append([]pipeline.Option{pipeline.WithSleeper(noSleep)}, opts...)
	exec, err := pipeline.New(g, reg, cfg, opts...)
	if err != nil {
		t.Fatalf("pipeline.New() failed: %v", err)
	}
	return exec
}

func run(t *testing.T, exec *pipeline.Executor, input map[string]any) *state.PipelineState {
	t.Helper()
	ps, err := exec.Run(context.Background(), state.New("", input))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return ps
}

func record(t *testing.T, ps *state.PipelineState, node string) state.ExecutionRecord {
	t.Helper()
	rec, ok := ps.Record(node)
	if !ok {
		t.Fatalf("no record for %s", node)
	}
	return rec
}

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureObserver) count(t observability.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
