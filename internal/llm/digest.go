package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goanswer/internal/search"
)

// digestTopResults caps how many results feed one digest prompt.
const digestTopResults = 5

// Digest summarizes one query's results with respect to the original
// question in 2-4 sentences.
func (c *Caller) Digest(ctx context.Context, question, query string, results []search.Result) (string, openai.Usage, error) {
	top := results
	if len(top) > digestTopResults {
		top = top[:digestTopResults]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\nSearch query: %s\n\nResults:\n", question, query)
	for i, r := range top {
		fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "%s\n", head(r.Description, 300))
		}
		if r.Content != "" {
			fmt.Fprintf(&b, "%s\n", head(r.Content, 500))
		}
		b.WriteString("\n")
	}
	return c.complete(ctx, digestSystem, b.String(), 0.2, 0)
}

// FallbackDigest builds a deterministic digest when the model call fails,
// so an upstream hiccup never loses a completed search.
func FallbackDigest(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results were found for %q.", query)
	}
	top := results
	if len(top) > 2 {
		top = top[:2]
	}
	parts := make([]string, 0, len(top))
	for _, r := range top {
		s := r.Title
		if r.Description != "" {
			s += ": " + head(r.Description, 150)
		}
		parts = append(parts, s)
	}
	return fmt.Sprintf("Search for %q returned %d results. Top findings: %s.",
		query, len(results), strings.Join(parts, "; "))
}

// Summarizer adapts a (typically cheap) model to the search client's
// pre-summarization hook.
type Summarizer struct {
	Caller *Caller
}

// Summarize compresses page content to roughly 300 words with respect to
// the query that surfaced it.
func (s *Summarizer) Summarize(ctx context.Context, content, query string) (string, error) {
	if s == nil || s.Caller == nil {
		return "", fmt.Errorf("summarizer not configured")
	}
	user := fmt.Sprintf("Search query: %s\n\nPage content:\n%s", query, head(content, 12_000))
	out, _, err := s.Caller.complete(ctx, summarizeSystem, user, 0.2, 500)
	return out, err
}
