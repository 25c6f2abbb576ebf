package analysis

import (
	"context"
	"regexp"
	"strings"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// Output keys written by Context and Blocks.
const (
	KeyDomain      = "domain"
	KeyEntities    = "entities"
	KeyBlocks      = "blocks"
	KeyBlockCounts = "block_counts"
)

type entityPattern struct {
	kind       string
	re         *regexp.Regexp
	confidence float64
}

var entityPatterns = []entityPattern{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), 0.9},
	{"url", regexp.MustCompile(`https?://\S+|www\.\S+`), 0.9},
	{"date", regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`), 0.8},
}

// domains are scored in order; ties go to the earlier domain.
var domains = []struct {
	name     string
	keywords []string
}{
	{"it", []string{"software", "code", "programming", "database", "server", "api", "cloud"}},
	{"marketing", []string{"campaign", "brand", "advertising", "social media", "seo", "ctr"}},
	{"finance", []string{"revenue", "profit", "budget", "investment", "roi", "expenses"}},
}

var domainPatterns = func() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(domains))
	for _, d := range domains {
		for _, k := range d.keywords {
			out[d.name] = append(out[d.name], regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(k)+`\b`))
		}
	}
	return out
}()

type entity struct {
	kind       string
	text       string
	start, end int
	confidence float64
}

func (e entity) output() map[string]any {
	return map[string]any{
		"type":       e.kind,
		"text":       e.text,
		"start":      e.start,
		"end":        e.end,
		"confidence": e.confidence,
	}
}

func extractEntities(text string) []entity {
	var found []entity
	collect := func(kind string, re *regexp.Regexp, confidence float64) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			found = append(found, entity{
				kind:       kind,
				text:       text[loc[0]:loc[1]],
				start:      loc[0],
				end:        loc[1],
				confidence: confidence,
			})
		}
	}
	for _, p := range entityPatterns {
		collect(p.kind, p.re, p.confidence)
	}
	for _, d := range domains {
		for _, re := range domainPatterns[d.name] {
			collect(d.name, re, 0.7)
		}
	}
	return found
}

// domainOf scores each domain by keyword presence plus half a point per
// related entity. Email and url entities count toward it. A text with no
// domain signal is general.
func domainOf(lower string, entities []entity) string {
	scores := make(map[string]float64, len(domains))
	for _, d := range domains {
		scores[d.name] = float64(len(matches(lower, d.keywords)))
	}
	for _, e := range entities {
		switch e.kind {
		case "email", "url":
			scores["it"] += 0.5
		default:
			if _, ok := scores[e.kind]; ok {
				scores[e.kind] += 0.5
			}
		}
	}

	best, bestScore := "general", 1.0
	for _, d := range domains {
		if scores[d.name] > bestScore {
			best, bestScore = d.name, scores[d.name]
		}
	}
	return best
}

// Context extracts entities (emails, urls, dates and domain keywords) and
// infers the business domain of the submission.
func Context(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}
	entities := extractEntities(text)

	list := make([]any, len(entities))
	for i, e := range entities {
		list[i] = e.output()
	}
	return state.PartialOutput{
		KeyDomain:      domainOf(strings.ToLower(text), entities),
		KeyEntities:    list,
		"entity_count": len(entities),
	}, nil
}

var (
	markdownHeader = regexp.MustCompile(`^#{1,6}\s+`)
	listItem       = regexp.MustCompile(`^[-*•]\s+|^\d+\.\s+`)
)

type block struct {
	kind       string
	lines      []string
	start, end int
	meta       map[string]any
}

func (b *block) output() map[string]any {
	out := map[string]any{
		"type":       b.kind,
		"content":    strings.Join(b.lines, "\n"),
		"start_line": b.start,
		"end_line":   b.end,
	}
	for k, v := range b.meta {
		out[k] = v
	}
	return out
}

func isUpper(s string) bool {
	return strings.ToUpper(s) == s && strings.ToLower(s) != s
}

func lineKind(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return ""
	case len(trimmed) < 80 && (strings.HasSuffix(trimmed, ":") || isUpper(trimmed)):
		return "header"
	case markdownHeader.MatchString(trimmed):
		return "header"
	case listItem.MatchString(trimmed):
		return "list"
	case strings.Contains(line, "|") && !strings.HasPrefix(trimmed, "|"):
		return "table"
	default:
		return "paragraph"
	}
}

// segment splits text into header, list, table and paragraph blocks.
// Consecutive lines of the same kind join one block, except headers,
// which are always a block of their own. Blank lines close the open block.
func segment(text string) []*block {
	var (
		blocks  []*block
		current *block
	)
	flush := func() {
		if current != nil {
			blocks = append(blocks, current)
			current = nil
		}
	}

	for i, line := range strings.Split(text, "\n") {
		kind := lineKind(line)
		if kind == "" {
			flush()
			continue
		}
		if current != nil && current.kind == kind && kind != "header" {
			current.lines = append(current.lines, line)
			current.end = i
			if kind == "table" {
				current.meta["row_count"] = len(current.lines)
			}
			continue
		}

		flush()
		current = &block{kind: kind, lines: []string{line}, start: i, end: i, meta: map[string]any{}}
		switch kind {
		case "header":
			current.meta["level"] = "h2"
			if strings.HasPrefix(line, "# ") {
				current.meta["level"] = "h1"
			}
		case "list":
			current.meta["list_type"] = "bullet"
			if c := strings.TrimSpace(line)[0]; c >= '0' && c <= '9' {
				current.meta["list_type"] = "numbered"
			}
		case "table":
			current.meta["row_count"] = 1
		}
	}
	flush()
	return blocks
}

// Blocks segments the raw submission into semantic blocks. It reads the
// input text because intake collapses the line structure.
func Blocks(_ context.Context, view state.View) (state.PartialOutput, error) {
	text, ok := view.InputString(KeyText)
	if !ok || strings.TrimSpace(text) == "" {
		var err error
		if text, err = submissionText(view); err != nil {
			return nil, err
		}
	}

	blocks := segment(text)
	list := make([]any, len(blocks))
	counts := map[string]any{}
	for i, b := range blocks {
		list[i] = b.output()
		n, _ := counts[b.kind].(int)
		counts[b.kind] = n + 1
	}
	return state.PartialOutput{
		KeyBlocks:      list,
		KeyBlockCounts: counts,
	}, nil
}
