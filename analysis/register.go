package analysis

import (
	"fmt"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/store"
)

// Capability names registered by Register.
const (
	CapIntake            = "intake"
	CapContext           = "context"
	CapBlocks            = "blocks"
	CapClassify          = "classify"
	CapDuplicates        = "duplicates"
	CapConfidenceUrgency = "confidence_urgency"
	CapRisk              = "risk"
	CapImpact            = "impact"
	CapResources         = "resources"
	CapPrioritize        = "prioritize"
	CapRecommend         = "recommend"

	// LLMPrefix is prepended to the name of each model-backed variant.
	LLMPrefix = "llm."
)

// Options select the collaborators the capabilities use.
type Options struct {
	// Store backs duplicate detection. Nil uses an empty in-memory store.
	Store store.Store

	DuplicateThreshold float64
	DuplicateWindow    int

	// LLM enables the llm.* variants when non-nil.
	LLM *LLM
}

// Register adds every triage capability to cat.
func Register(cat *capability.Catalog, opts Options) error {
	rules := map[string]capability.Func{
		CapIntake:            Intake,
		CapContext:           Context,
		CapBlocks:            Blocks,
		CapClassify:          Classify,
		CapConfidenceUrgency: ConfidenceUrgency,
		CapRisk:              Risk,
		CapImpact:            Impact,
		CapResources:         Resources,
		CapPrioritize:        Prioritize,
		CapRecommend:         Recommend,
	}
	for name, fn := range rules {
		if err := cat.RegisterFunc(name, fn); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	s := opts.Store
	if s == nil {
		s = store.NewMemoryStore()
	}
	detector := NewDuplicateDetector(s, opts.DuplicateThreshold, opts.DuplicateWindow)
	if err := cat.Register(CapDuplicates, detector); err != nil {
		return fmt.Errorf("register %s: %w", CapDuplicates, err)
	}

	if opts.LLM == nil {
		return nil
	}
	for name, task := range llmTasks {
		if err := cat.Register(LLMPrefix+name, &llmCapability{llm: opts.LLM, task: task}); err != nil {
			return fmt.Errorf("register %s: %w", LLMPrefix+name, err)
		}
	}
	return nil
}
