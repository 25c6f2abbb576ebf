// Package analysis supplies the capabilities of the backlog triage graph.
//
// Rule-based variants are deterministic keyword heuristics and are always
// registered under their plain names:
//
//	intake, context, blocks, classify, duplicates, confidence_urgency,
//	risk, impact, resources, prioritize, recommend
//
// When an LLM client is configured, model-backed variants of context and the
// scoring stages are registered with an "llm." prefix (llm.classify, llm.risk, ...).
// A graph file selects a variant per node through its capability reference.
//
// Every capability reads the submission text from the "text" key of its
// dependencies' outputs, falling back to the "text" input field. blocks
// prefers the input field, which keeps the line structure. Scores that
// cannot be computed because an upstream key is absent are omitted and the
// absent keys are listed under "missing"; absent keys are never treated as
// zero.
package analysis
