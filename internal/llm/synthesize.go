package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goanswer/internal/budget"
	"github.com/hyperifyio/goanswer/internal/search"
)

// Token budget for the final prompt: entries are appended while the running
// estimate stays under contextTokenCeiling, which reserves
// responseReserveTokens of the model context for the answer.
const (
	responseReserveTokens = 7_000
	contextTokenCeiling   = budget.MaxTokens - responseReserveTokens
)

// synthesisTopResults caps how many digested results enter the context.
const synthesisTopResults = 8

// fallbackTopResults caps the deterministic fallback answer's source list.
const fallbackTopResults = 5

// Synthesize produces the final cited answer from the accumulated digests
// and their results. The call retries transient upstream failures per the
// caller's policy; a definitive failure surfaces as an error so the caller
// can fall back to FallbackAnswer.
func (c *Caller) Synthesize(ctx context.Context, question string, digests []DigestContext, results []search.Result, p Prompts) (string, openai.Usage, error) {
	searchContext := BuildSearchContext(digests, results)
	tmpl := p.searchTemplate(len(results))
	user := renderTemplate(tmpl, question, searchContext)

	var out string
	var usage openai.Usage
	retry := c.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	err := retry.Do(ctx, func() error {
		var callErr error
		out, usage, callErr = c.complete(ctx, p.searchSystem(), user, 0.3, 0)
		return callErr
	})
	if err != nil {
		return "", usage, fmt.Errorf("final synthesis: %w", err)
	}
	return out, usage, nil
}

// BuildSearchContext renders the numbered context block fed to synthesis:
// digests first, then one entry per top result, appended only while the
// running token estimate stays under the ceiling.
func BuildSearchContext(digests []DigestContext, results []search.Result) string {
	var b strings.Builder
	for _, d := range digests {
		fmt.Fprintf(&b, "Findings for %q: %s\n\n", d.SearchQuery, d.Summary)
	}

	top := results
	if len(top) > synthesisTopResults {
		top = top[:synthesisTopResults]
	}
	for i, r := range top {
		entry := fmt.Sprintf("%d. %s\n%s\n%s\nKey info: %s\n\n",
			i+1, r.Title, r.URL, head(r.Description, 300), head(r.Content, 800))
		if budget.EstimateTokensFromChars(b.Len()+len(entry)) >= contextTokenCeiling {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimSpace(b.String())
}

// FallbackAnswer is the deterministic answer used when synthesis fails
// after all retries: the top results' titles, URLs, and descriptions with a
// notice that model processing was unavailable.
func FallbackAnswer(question string, results []search.Result) string {
	var b strings.Builder
	b.WriteString("AI processing was unavailable, so here are the most relevant search results instead.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	top := results
	if len(top) > fallbackTopResults {
		top = top[:fallbackTopResults]
	}
	if len(top) == 0 {
		b.WriteString("No search results were found.\n")
		return strings.TrimSpace(b.String())
	}
	for i, r := range top {
		fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "%s\n", head(r.Description, 300))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
