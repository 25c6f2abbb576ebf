package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

var errEmptyText = errors.New("submission text is empty")

var (
	audioExt = []string{".mp3", ".wav", ".m4a", ".flac", ".aac", ".ogg"}
	imageExt = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp"}
	textExt  = []string{".txt", ".md", ".doc", ".docx"}
)

// modality classifies a submission from its filename and mimetype inputs.
func modality(filename, mimetype string) string {
	switch {
	case strings.HasPrefix(mimetype, "audio/"):
		return "audio"
	case mimetype == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mimetype, "image/"):
		return "image"
	case strings.HasPrefix(mimetype, "text/"):
		return "text"
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return "pdf"
	case slices.Contains(audioExt, ext):
		return "audio"
	case slices.Contains(imageExt, ext):
		return "image"
	case slices.Contains(textExt, ext):
		return "text"
	}
	return "text"
}

// Intake normalizes the submission text and records its size and modality.
func Intake(_ context.Context, view state.View) (state.PartialOutput, error) {
	raw, _ := view.InputString(KeyText)
	text := normalize(raw)
	if text == "" {
		return nil, capability.Invalid(KeyText, errEmptyText)
	}

	filename, _ := view.InputString("filename")
	mimetype, _ := view.InputString("mimetype")

	return state.PartialOutput{
		KeyText:      text,
		KeyWordCount: len(strings.Fields(text)),
		KeyModality:  modality(filename, mimetype),
	}, nil
}

// categories are checked in order; the first category with a matching
// keyword wins.
var categories = []struct {
	name     string
	keywords []string
}{
	{"bug", []string{"bug", "error", "issue", "problem", "defect", "failure", "crash"}},
	{"idea", []string{"idea", "feature", "proposal", "improvement", "enhancement"}},
	{"feedback", []string{"feedback", "comment", "suggestion", "opinion"}},
	{"question", []string{"question", "how", "what", "why", "when", "where", "who"}},
	{"request", []string{"request", "need", "require", "please", "can you", "could you"}},
}

// Classify assigns a category from keyword patterns.
func Classify(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}
	words := tokens(text)
	lower := strings.ToLower(text)

	for _, c := range categories {
		for _, k := range c.keywords {
			hit := false
			if strings.Contains(k, " ") {
				hit = strings.Contains(lower, k)
			} else {
				_, hit = words[k]
			}
			if hit {
				return state.PartialOutput{
					KeyCategory:           c.name,
					"category_confidence": 0.8,
					"category_keyword":    k,
				}, nil
			}
		}
	}

	return state.PartialOutput{
		KeyCategory:           "general",
		"category_confidence": 0.5,
	}, nil
}

var (
	urgencyKeywords = []string{"urgent", "immediate", "asap", "deadline", "critical", "blocker"}
	detailKeywords  = []string{"steps", "plan", "requirements", "specification", "detailed"}
	vagueKeywords   = []string{"maybe", "possibly", "not sure", "unsure", "might"}
	riskKeywords    = []string{"urgent", "critical", "blocker", "security", "vulnerability", "deadline"}
	valueKeywords   = []string{"revenue", "growth", "users", "engagement", "retention", "conversion", "efficiency", "automation", "scalability"}
	scopeKeywords   = []string{"all users", "entire system", "core functionality", "company-wide", "global", "majority"}
	complexKeywords = []string{"complex", "difficult", "challenging", "multiple teams", "cross-functional"}
)

var skillKeywords = map[string][]string{
	"design":   {"design", "ui", "ux", "interface"},
	"backend":  {"database", "backend", "api", "server"},
	"frontend": {"frontend", "javascript", "react", "vue"},
}

// ConfidenceUrgency scores how actionable (confidence, 0-1) and how
// time-sensitive (urgency, 0-10) the submission is.
func ConfidenceUrgency(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)

	urgency := 3.0 + 2.0*float64(len(matches(lower, urgencyKeywords)))
	confidence := 0.7
	for range matches(lower, detailKeywords) {
		confidence = min(0.95, confidence+0.1)
	}
	for range matches(lower, vagueKeywords) {
		confidence = max(0.1, confidence-0.15)
	}
	urgency = clamp(urgency, 0, 10)

	rationale := "Standard task"
	if urgency > 7 {
		rationale = "High urgency due to time-sensitive keywords"
	}
	if confidence < 0.5 {
		rationale = "Low confidence due to vague language"
	}

	return state.PartialOutput{
		KeyConfidence:       confidence,
		KeyUrgency:          urgency,
		"urgency_rationale": rationale,
	}, nil
}

// Risk scores delivery risk on 0-10 from risk keywords and text length.
func Risk(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}
	found := matches(strings.ToLower(text), riskKeywords)

	risk := 3.0 + 1.5*float64(len(found))
	words := len(strings.Fields(text))
	if words > 100 {
		risk++
	}
	if words > 200 {
		risk++
	}
	risk = clamp(risk, 0, 10)

	return state.PartialOutput{
		KeyRisk:         risk,
		"risk_level":    level(risk, 6, 3),
		"risk_keywords": nonNil(found),
	}, nil
}

// Impact scores the potential value on 0-10 from value and scope keywords.
func Impact(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	value := matches(lower, valueKeywords)
	scope := matches(lower, scopeKeywords)

	impact := clamp(3.0+float64(len(value))+1.5*float64(len(scope)), 0, 10)

	return state.PartialOutput{
		KeyImpact:         impact,
		"impact_level":    level(impact, 7, 4),
		"impact_keywords": nonNil(append(value, scope...)),
	}, nil
}

// Resources scores resource availability on 1-10 (higher means easier to
// staff) and lists the skills the work needs.
func Resources(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	words := tokens(text)

	score := clamp(7.0-1.5*float64(len(matches(lower, complexKeywords))), 1, 10)

	skills := []string{"general"}
	for _, skill := range []string{"design", "backend", "frontend"} {
		for _, k := range skillKeywords[skill] {
			if _, ok := words[k]; ok {
				skills = append(skills, skill)
				break
			}
		}
	}

	return state.PartialOutput{
		KeyResources:     score,
		"skills":         skills,
		"estimate_hours": max(5.0, float64(len(strings.Fields(text)))/20.0),
	}, nil
}

// Prioritize combines the scoring group. It computes
//
//	overall_score  = 0.4*impact + 0.3*urgency + 0.3*risk
//	priority_score = (risk+impact)*confidence - (10-resources) + urgency
//
// and omits either score when one of its inputs is absent.
func Prioritize(_ context.Context, view state.View) (state.PartialOutput, error) {
	scores := map[string]float64{}
	var missing []string
	for _, key := range []string{KeyConfidence, KeyUrgency, KeyRisk, KeyImpact, KeyResources} {
		if v, ok := view.Float(key); ok {
			scores[key] = v
		} else {
			missing = append(missing, key)
		}
	}
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := scores[k]; !ok {
				return false
			}
		}
		return true
	}

	out := state.PartialOutput{KeyMissing: nonNil(missing)}
	if has(KeyImpact, KeyUrgency, KeyRisk) {
		out[KeyOverall] = 0.4*scores[KeyImpact] + 0.3*scores[KeyUrgency] + 0.3*scores[KeyRisk]
	}
	if has(KeyConfidence, KeyUrgency, KeyRisk, KeyImpact, KeyResources) {
		p := (scores[KeyRisk]+scores[KeyImpact])*scores[KeyConfidence] - (10 - scores[KeyResources]) + scores[KeyUrgency]
		out[KeyPriority] = p
		out[KeyLevel] = level(p, 15, 8)
	}
	for k, v := range scores {
		out[k] = v
	}
	return out, nil
}

// Recommend turns the prioritized scores into a recommendation and the
// next steps for its priority.
func Recommend(_ context.Context, view state.View) (state.PartialOutput, error) {
	overall, hasOverall := view.Float(KeyOverall)
	confidence, hasConfidence := view.Float(KeyConfidence)

	var missing []string
	if m, ok := view.Lookup(KeyMissing); ok {
		missing = stringList(m)
	}

	out := state.PartialOutput{}
	switch {
	case !hasOverall || !hasConfidence:
		out["recommendation"] = "Needs clarification"
		out["rationale"] = fmt.Sprintf("Unknown inputs: %s", strings.Join(nonNil(missing), ", "))
	case confidence < 0.4:
		out["recommendation"] = "Needs clarification"
		out["rationale"] = "Low confidence in the submission"
	default:
		out["recommendation"] = recommendation(overall)
		out["rationale"] = rationale(view)
	}
	priority := "Low"
	if hasOverall {
		priority = level(overall, 7, 4)
		out["priority"] = priority
	}
	out["next_steps"] = slices.Clone(nextSteps[priority])
	for _, key := range []string{KeyCategory, KeyDomain} {
		if v, ok := view.String(key); ok {
			out[key] = v
		}
	}
	out[KeyMissing] = nonNil(missing)
	return out, nil
}

// nextSteps are keyed by priority level. An unknown priority is Low.
var nextSteps = map[string][]string{
	"High":   {"Assign to senior developer", "Schedule immediate review", "Prepare implementation plan"},
	"Medium": {"Add to sprint backlog", "Estimate effort", "Plan for next iteration"},
	"Low":    {"Add to idea backlog", "Revisit during next planning session"},
}

func recommendation(overall float64) string {
	switch {
	case overall > 7:
		return "High priority - Implement immediately"
	case overall > 4:
		return "Medium priority - Schedule for next sprint"
	default:
		return "Low priority - Consider for backlog"
	}
}

func rationale(view state.View) string {
	var parts []string
	for _, f := range []struct {
		key, label string
	}{
		{KeyRisk, "High risk score"},
		{KeyImpact, "High impact potential"},
		{KeyUrgency, "High urgency"},
	} {
		if v, ok := view.Float(f.key); ok && v > 7 {
			parts = append(parts, fmt.Sprintf("%s (%.1f)", f.label, v))
		}
	}
	if len(parts) == 0 {
		return "Standard task with balanced metrics"
	}
	return strings.Join(parts, " - ")
}

// level maps v to High, Medium or Low with exclusive thresholds.
func level(v, high, medium float64) string {
	switch {
	case v > high:
		return "High"
	case v > medium:
		return "Medium"
	default:
		return "Low"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
