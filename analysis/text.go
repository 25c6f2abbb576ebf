package analysis

import (
	"regexp"
	"strings"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Output keys shared between stages.
const (
	KeyText       = "text"
	KeyWordCount  = "word_count"
	KeyModality   = "modality"
	KeyCategory   = "category"
	KeyConfidence = "confidence"
	KeyUrgency    = "urgency"
	KeyRisk       = "risk"
	KeyImpact     = "impact"
	KeyResources  = "resources"
	KeyOverall    = "overall_score"
	KeyPriority   = "priority_score"
	KeyLevel      = "priority_level"
	KeyMissing    = "missing"
)

var (
	punctuation = regexp.MustCompile(`[^\w\s]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// normalize collapses whitespace and trims the text.
func normalize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// tokens lowercases s, strips punctuation and returns the distinct words.
func tokens(s string) map[string]struct{} {
	clean := punctuation.ReplaceAllString(strings.ToLower(s), "")
	set := make(map[string]struct{})
	for _, w := range strings.Fields(clean) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard is the token-set similarity of a and b in [0,1].
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// matches returns the keywords contained in lower, in keyword order.
func matches(lower string, keywords []string) []string {
	var found []string
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			found = append(found, k)
		}
	}
	return found
}

func clamp(v, lo, hi float64) float64 {
	return min(hi, max(lo, v))
}

// submissionText returns the text a capability should analyze.
func submissionText(view state.View) (string, error) {
	if s, ok := view.String(KeyText); ok && s != "" {
		return s, nil
	}
	if s, ok := view.InputString(KeyText); ok && normalize(s) != "" {
		return normalize(s), nil
	}
	return "", capability.Invalid(KeyText, errEmptyText)
}
