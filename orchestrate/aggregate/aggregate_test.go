package aggregate_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/tailored-agentic-units/backlog/orchestrate/aggregate"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		outputs map[string]state.PartialOutput
		want    state.PartialOutput
	}{
		{
			name:    "disjoint union",
			outputs: map[string]state.PartialOutput{"R1": {"risk": 7}, "R2": {"impact": 4}},
			want:    state.PartialOutput{"risk": 7, "impact": 4},
		},
		{
			name:    "absent member contributes nothing",
			outputs: map[string]state.PartialOutput{"R1": {"risk": 7}, "R2": nil},
			want:    state.PartialOutput{"risk": 7},
		},
		{
			name:    "empty group",
			outputs: nil,
			want:    state.PartialOutput{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregate.Merge(tt.outputs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMerge_Detached(t *testing.T) {
	member := state.PartialOutput{"tags": []any{"a"}}
	merged := aggregate.Merge(map[string]state.PartialOutput{"R1": member})

	merged["tags"].([]any)[0] = "mutated"
	if member["tags"].([]any)[0] != "a" {
		t.Error("merge aliases member output")
	}
}

func TestUnion(t *testing.T) {
	cat := capability.NewCatalog()
	if err := aggregate.Register(cat); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	union, ok := cat.Lookup(aggregate.UnionName)
	if !ok {
		t.Fatal("union capability not registered")
	}

	view := state.NewView("t", map[string]any{"id": 1}, map[string]state.PartialOutput{
		"R1": {"risk": 7},
		"R2": {"impact": 4},
	})

	out, err := union.Invoke(context.Background(), view)
	if err != nil {
		t.Fatal(err)
	}
	want := state.PartialOutput{"risk": 7, "impact": 4}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Union() = %v, want %v", out, want)
	}
}
