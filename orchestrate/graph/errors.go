package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFatalGraph matches every *FatalGraphError with errors.Is.
var ErrFatalGraph = errors.New("fatal graph error")

// ErrLoad reports a graph file that could not be read or decoded.
var ErrLoad = errors.New("graph load failed")

// Kind classifies structural graph defects.
type Kind string

const (
	KindEmpty                  Kind = "empty"
	KindEmptyID                Kind = "empty_id"
	KindMissingCapability      Kind = "missing_capability"
	KindDuplicateNode          Kind = "duplicate_node"
	KindUnknownDependency      Kind = "unknown_dependency"
	KindSelfDependency         Kind = "self_dependency"
	KindNegativeRetries        Kind = "negative_retries"
	KindFallbackKey            Kind = "fallback_key"
	KindCycle                  Kind = "cycle"
	KindNoEntry                Kind = "no_entry"
	KindMultipleEntries        Kind = "multiple_entries"
	KindNoExit                 Kind = "no_exit"
	KindMultipleExits          Kind = "multiple_exits"
	KindEntryMismatch          Kind = "entry_mismatch"
	KindExitMismatch           Kind = "exit_mismatch"
	KindGroupDependency        Kind = "group_internal_dependency"
	KindGroupDependents        Kind = "group_dependents_mismatch"
	KindGroupUndeclaredOutputs Kind = "group_undeclared_outputs"
	KindGroupOutputOverlap     Kind = "group_output_overlap"
	KindGroupCycle             Kind = "group_cycle"
	KindUnresolvedCapability   Kind = "unresolved_capability"
)

// FatalGraphError is a structural defect found while building or binding a
// graph. It is never produced during a run.
type FatalGraphError struct {
	Kind   Kind
	Nodes  []string
	Detail string
}

func (e *FatalGraphError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", ErrFatalGraph, e.Kind)
	if len(e.Nodes) > 0 {
		sep := ", "
		if e.Kind == KindCycle || e.Kind == KindGroupCycle {
			sep = " -> "
		}
		fmt.Fprintf(&b, ": %s", strings.Join(e.Nodes, sep))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	return b.String()
}

func (e *FatalGraphError) Unwrap() error { return ErrFatalGraph }

func fatal(kind Kind, detail string, nodes ...string) *FatalGraphError {
	return &FatalGraphError{Kind: kind, Nodes: nodes, Detail: detail}
}
