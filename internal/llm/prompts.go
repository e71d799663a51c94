package llm

import "strings"

// Template placeholders expected in user-supplied overrides.
const (
	PlaceholderQuery         = "{{QUERY}}"
	PlaceholderSearchContext = "{{SEARCH_CONTEXT}}"
)

// Default system prompts for the call sites. They are process configuration;
// each inbound request may override the first three.
const (
	DefaultDecisionSystem = `You decide whether a question needs a web search or can be answered from your own knowledge. Prefer searching whenever the question involves recent events, news, dates, prices, weather, locations, schedules, or anything that may have changed after your training. Respond with strict JSON only, no narration. Use exactly one of these shapes: {"response": "<complete answer>"} when you can answer directly, or {"search_queries": ["q1", "q2", "q3"]} with one to three diverse, concise search queries.`

	DefaultDirectSystem = `You are a helpful research assistant. Answer the question accurately and concisely from your own knowledge. If you are unsure, say so plainly rather than guessing.`

	DefaultSearchSystem = `You are a research assistant writing a final answer from web search findings. Use ONLY the provided search context for factual claims and cite the source URL inline next to each claim. Be accurate, organized, and concise. If the context is insufficient for part of the question, say which part.`

	digestSystem = `You summarize web search results. Given results for one search query, write 2 to 4 sentences capturing the facts most relevant to the user's original question. No preamble, no bullet points.`

	continuationSystem = `You decide whether more web searching would materially improve an answer. Respond with strict JSON only. Use exactly one of these shapes: {"continue": false, "reason": "<why the findings suffice>"} or {"continue": true, "reason": "<what is missing>", "next_queries": ["q1", "q2"]} with at most two new queries that do not repeat earlier ones.`

	summarizeSystem = `You compress a web page. Summarize the content in at most 300 words, keeping facts relevant to the given search query. Plain prose only.`
)

// DefaultDecisionTemplate is the user-prompt skeleton for the initial
// decision call.
const DefaultDecisionTemplate = `Question: {{QUERY}}`

// DefaultSearchTemplate is the expanded final-synthesis user prompt, used
// when six or fewer results are in play and no override is supplied.
const DefaultSearchTemplate = `Answer the question below using the numbered search context. Cite the URL of each source you rely on inline, next to the claim it supports.

Question: {{QUERY}}

Search context:
{{SEARCH_CONTEXT}}

Write a complete, well-organized answer.`

// compactSearchTemplate trims instruction overhead when many results
// compete for context space.
const compactSearchTemplate = `Question: {{QUERY}}

Sources:
{{SEARCH_CONTEXT}}

Answer with inline URL citations.`

// Prompts bundles the per-request prompt configuration. Empty fields fall
// back to the package defaults.
type Prompts struct {
	DecisionSystem string
	DirectSystem   string
	SearchSystem   string
	// DecisionTemplate must contain {{QUERY}}.
	DecisionTemplate string
	// SearchTemplate must contain {{QUERY}} and {{SEARCH_CONTEXT}}. A
	// user-supplied template always wins over the compact variant.
	SearchTemplate string
}

func (p Prompts) decisionSystem() string {
	if strings.TrimSpace(p.DecisionSystem) != "" {
		return p.DecisionSystem
	}
	return DefaultDecisionSystem
}

func (p Prompts) directSystem() string {
	if strings.TrimSpace(p.DirectSystem) != "" {
		return p.DirectSystem
	}
	return DefaultDirectSystem
}

func (p Prompts) searchSystem() string {
	if strings.TrimSpace(p.SearchSystem) != "" {
		return p.SearchSystem
	}
	return DefaultSearchSystem
}

func (p Prompts) decisionTemplate() string {
	if strings.TrimSpace(p.DecisionTemplate) != "" {
		return p.DecisionTemplate
	}
	return DefaultDecisionTemplate
}

// searchTemplate picks the final-synthesis template: user override first,
// then compact when many results are in play, then the expanded default.
func (p Prompts) searchTemplate(resultCount int) string {
	if strings.TrimSpace(p.SearchTemplate) != "" {
		return p.SearchTemplate
	}
	if resultCount > 6 {
		return compactSearchTemplate
	}
	return DefaultSearchTemplate
}

// renderTemplate substitutes the known placeholders.
func renderTemplate(tmpl, query, searchContext string) string {
	out := strings.ReplaceAll(tmpl, PlaceholderQuery, query)
	out = strings.ReplaceAll(out, PlaceholderSearchContext, searchContext)
	return out
}

// ValidateDecisionTemplate checks an override for the required placeholder.
func ValidateDecisionTemplate(tmpl string) bool {
	return tmpl == "" || strings.Contains(tmpl, PlaceholderQuery)
}

// ValidateSearchTemplate checks an override for both required placeholders.
func ValidateSearchTemplate(tmpl string) bool {
	return tmpl == "" || (strings.Contains(tmpl, PlaceholderQuery) && strings.Contains(tmpl, PlaceholderSearchContext))
}
