package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// maxNextQueries caps how many follow-up queries one continuation step may
// add to the loop.
const maxNextQueries = 2

// Continuation is the parsed outcome of one continuation check.
type Continuation struct {
	Continue    bool
	Reason      string
	NextQueries []string
}

// DigestContext is the per-query summary fed back into the continuation
// and synthesis prompts.
type DigestContext struct {
	SearchQuery string
	Summary     string
}

type continuationPayload struct {
	Continue    bool     `json:"continue"`
	Reason      string   `json:"reason"`
	NextQueries []string `json:"next_queries"`
}

// Continue asks the model whether another search iteration is warranted.
// Model or parse failures never propagate: the loop stops with a recorded
// reason instead.
func (c *Caller) Continue(ctx context.Context, question string, digests []DigestContext, iteration int) (Continuation, openai.Usage) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\nCompleted search iteration: %d\n\nFindings so far:\n", question, iteration+1)
	for i, d := range digests {
		fmt.Fprintf(&b, "%d. Query %q: %s\n", i+1, d.SearchQuery, d.Summary)
	}

	raw, usage, err := c.complete(ctx, continuationSystem, b.String(), 0.1, 0)
	if err != nil {
		log.Warn().Err(err).Msg("continuation call failed; stopping search")
		return Continuation{Reason: "Continuation check failed - stopping search"}, usage
	}
	return ParseContinuation(raw), usage
}

// ParseContinuation interprets the continuation JSON, defaulting to stop on
// any parse failure.
func ParseContinuation(raw string) Continuation {
	var payload continuationPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return Continuation{Reason: "Parse error - stopping search"}
	}
	out := Continuation{Continue: payload.Continue, Reason: strings.TrimSpace(payload.Reason)}
	if !out.Continue {
		return out
	}
	for _, q := range payload.NextQueries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out.NextQueries = append(out.NextQueries, q)
		if len(out.NextQueries) == maxNextQueries {
			break
		}
	}
	if len(out.NextQueries) == 0 {
		// Continuing without queries is meaningless; stop instead.
		out.Continue = false
	}
	return out
}
