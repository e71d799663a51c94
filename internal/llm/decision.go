package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// maxInitialQueries caps how many seed queries the initial decision may
// produce.
const maxInitialQueries = 3

// Decision is the parsed initial decision. Exactly one branch is populated:
// a non-empty Response answers directly, otherwise Queries seeds the search
// loop.
type Decision struct {
	Response string
	Queries  []string
}

// Direct reports whether the model chose to answer without searching.
func (d Decision) Direct() bool { return d.Response != "" }

// decisionPayload accepts both the current and the legacy key for queries.
type decisionPayload struct {
	Response      string   `json:"response"`
	SearchQueries []string `json:"search_queries"`
	SearchTerms   []string `json:"search_terms"`
}

// DecideInitial asks the model whether to answer directly or search. Any
// unparseable output degrades to searching with the original question.
func (c *Caller) DecideInitial(ctx context.Context, question string, p Prompts) (Decision, openai.Usage, error) {
	user := renderTemplate(p.decisionTemplate(), question, "")
	raw, usage, err := c.complete(ctx, p.decisionSystem(), user, 0.1, 0)
	if err != nil {
		return Decision{}, usage, err
	}
	return ParseDecision(raw, question), usage, nil
}

// ParseDecision interprets the model's decision JSON. A parse failure or an
// empty result degrades to searching with the original question verbatim.
func ParseDecision(raw, question string) Decision {
	fallback := Decision{Queries: []string{question}}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		log.Debug().Str("raw", head(raw, 200)).Msg("decision parse failed; searching with original query")
		return fallback
	}
	if resp := strings.TrimSpace(payload.Response); resp != "" {
		return Decision{Response: resp}
	}
	queries := payload.SearchQueries
	if len(queries) == 0 {
		queries = payload.SearchTerms
	}
	cleaned := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		cleaned = append(cleaned, q)
		if len(cleaned) == maxInitialQueries {
			break
		}
	}
	if len(cleaned) == 0 {
		return fallback
	}
	return Decision{Queries: cleaned}
}

// DirectAnswer asks the model to answer from its own knowledge, for direct
// mode. In auto mode a decision without response text seeds the search loop
// instead.
func (c *Caller) DirectAnswer(ctx context.Context, question string, p Prompts) (string, openai.Usage, error) {
	return c.complete(ctx, p.directSystem(), question, 0.3, 0)
}

// extractJSON isolates the first balanced-looking JSON object in model
// output, tolerating markdown fences and narration around it.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = strings.TrimSpace(strings.Trim(s, "`"))
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
