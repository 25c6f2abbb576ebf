package graph

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// hclFile is the root of an HCL graph file:
//
//	name  = "triage"
//	entry = "intake"
//
//	node "risk" {
//	  capability  = "llm.risk"
//	  depends_on  = ["classify", "duplicates"]
//	  group       = "scoring"
//	  outputs     = ["risk"]
//	  fallback    = { risk = 5 }
//	  timeout     = "20s"
//	}
type hclFile struct {
	Name  string    `hcl:"name,optional"`
	Entry string    `hcl:"entry,optional"`
	Exit  string    `hcl:"exit,optional"`
	Nodes []hclNode `hcl:"node,block"`
}

type hclNode struct {
	ID         string         `hcl:"id,label"`
	Capability string         `hcl:"capability"`
	DependsOn  []string       `hcl:"depends_on,optional"`
	Group      string         `hcl:"group,optional"`
	Outputs    []string       `hcl:"outputs,optional"`
	Requires   []string       `hcl:"requires,optional"`
	MaxRetries *int           `hcl:"max_retries,optional"`
	Critical   *bool          `hcl:"critical,optional"`
	Timeout    string         `hcl:"timeout,optional"`
	Fallback   hcl.Expression `hcl:"fallback,optional"`
}

func decodeHCL(data []byte, filename string) (Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Definition{}, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var root hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return Definition{}, fmt.Errorf("failed to decode HCL: %w", diags)
	}

	def := Definition{
		Name:  root.Name,
		Entry: root.Entry,
		Exit:  root.Exit,
		Nodes: make([]Node, 0, len(root.Nodes)),
	}

	for _, hn := range root.Nodes {
		n := Node{
			ID:            hn.ID,
			Capability:    hn.Capability,
			DependsOn:     hn.DependsOn,
			Group:         hn.Group,
			Outputs:       hn.Outputs,
			Requires:      hn.Requires,
			MaxRetriesNil: hn.MaxRetries,
			CriticalNil:   hn.Critical,
		}

		if hn.Timeout != "" {
			d, err := time.ParseDuration(hn.Timeout)
			if err != nil {
				return Definition{}, fmt.Errorf("node %s: invalid timeout %q: %w", hn.ID, hn.Timeout, err)
			}
			n.Timeout = config.Duration(d)
		}

		fallback, err := decodeFallback(hn.Fallback)
		if err != nil {
			return Definition{}, fmt.Errorf("node %s: fallback: %w", hn.ID, err)
		}
		n.Fallback = fallback

		def.Nodes = append(def.Nodes, n)
	}
	return def, nil
}

func decodeFallback(expr hcl.Expression) (state.PartialOutput, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}

	native, err := ctyToNative(val)
	if err != nil {
		return nil, err
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", val.Type().FriendlyName())
	}
	return state.PartialOutput(m), nil
}

// ctyToNative converts a cty.Value to plain Go values. Numbers become
// float64, lists and tuples []any, objects and maps map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}
