package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/search"
)

// DefaultMaxIterations caps the search loop.
const DefaultMaxIterations = 3

// Search modes accepted on a request.
const (
	ModeAuto   = "auto"
	ModeSearch = "search"
	ModeDirect = "direct"
)

// Answer modes reported on the response.
const (
	AnswerModeDirect      = "direct"
	AnswerModeSearch      = "search"
	AnswerModeMultiSearch = "multi-search"
)

// maxResponseLinks caps the deduplicated link list on the response.
const maxResponseLinks = 10

// digestLinks is how many representative links each digest keeps.
const digestLinks = 2

// noResultsAnswer is returned without a synthesis call when every query
// came back empty.
const noResultsAnswer = "No search results were found for this question. Try rephrasing it or asking something the web is likely to cover."

// Request is the normalized, immutable description of one research run.
type Request struct {
	Query        string
	SearchMode   string
	Limit        int
	FetchContent bool
	// Timeout bounds each scrape fetch.
	Timeout time.Duration
	Prompts llm.Prompts
}

// Link is one representative source reference.
type Link struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Digest is one executed query's summarized findings. Iteration and
// QueryIndex tag creation order; digests are appended and consumed in
// lexicographic (Iteration, QueryIndex) order.
type Digest struct {
	SearchQuery string          `json:"searchQuery"`
	Summary     string          `json:"summary"`
	Links       []Link          `json:"links"`
	RawResults  []search.Result `json:"rawResults"`
	Iteration   int             `json:"-"`
	QueryIndex  int             `json:"-"`
}

// LLMInfo reports aggregate model usage for one run.
type LLMInfo struct {
	Model              string       `json:"model"`
	Usage              openai.Usage `json:"usage"`
	ProcessingTime     int64        `json:"processingTime"`
	SearchIterations   int          `json:"searchIterations"`
	TotalSearchQueries int          `json:"totalSearchQueries"`
}

// Outcome is the assembled result of one run.
type Outcome struct {
	Query            string          `json:"query"`
	Answer           string          `json:"answer"`
	SearchResults    []search.Result `json:"searchResults"`
	SearchSummaries  []Digest        `json:"searchSummaries"`
	Links            []Link          `json:"links"`
	LLMResponse      LLMInfo         `json:"llmResponse"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	Timestamp        string          `json:"timestamp"`
	Mode             string          `json:"mode"`
}

// Searcher abstracts the search engine client for testability.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Response, error)
}

// Orchestrator drives one request through decide, search-loop, and final
// synthesis. It owns the digest list; all budget accounting lives in the
// search client's governor.
type Orchestrator struct {
	Searcher Searcher
	Caller   *llm.Caller
	// MaxIterations caps the search loop. Zero means the default (3).
	MaxIterations int
}

func (o *Orchestrator) maxIterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return DefaultMaxIterations
}

// Run executes the request and emits lifecycle events to sink. The sink may
// be nil. The returned error is terminal; no event is emitted after a
// terminal outcome — the transport is responsible for the error event.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (*Outcome, error) {
	if sink == nil {
		sink = discardSink{}
	}
	start := time.Now()

	sink.Emit(Event{Type: EventLog, Payload: payload("message", "research request received")})
	sink.Emit(Event{Type: EventInit, Payload: payload(
		"query", req.Query,
		"searches", []any{},
		"finalResponse", nil,
		"metadata", map[string]any{
			"searchMode":         req.SearchMode,
			"model":              o.Caller.Model,
			"iterations":         0,
			"maxIterations":      o.maxIterations(),
			"totalSearchResults": 0,
		},
	)})

	var usage openai.Usage

	// DECIDE
	var seed []string
	directAnswer := ""
	switch req.SearchMode {
	case ModeDirect:
		// No initial-decision call in forced direct mode.
	case ModeSearch:
		seed = []string{req.Query}
	default: // auto
		sink.Emit(stepEvent(StepInitialDecision, "deciding whether to search", 0))
		decision, u, err := o.Caller.DecideInitial(ctx, req.Query, req.Prompts)
		addUsage(&usage, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msg("initial decision failed; searching with original query")
			decision = llm.Decision{Queries: []string{req.Query}}
		}
		sink.Emit(Event{Type: EventDecision, Payload: payload("decision", decisionPayload(decision))})
		if decision.Direct() {
			directAnswer = decision.Response
		} else {
			seed = decision.Queries
		}
	}

	// DIRECT
	if req.SearchMode == ModeDirect || (req.SearchMode != ModeSearch && seed == nil) {
		answer := directAnswer
		if answer == "" {
			var u openai.Usage
			var err error
			answer, u, err = o.Caller.DirectAnswer(ctx, req.Query, req.Prompts)
			addUsage(&usage, u)
			if err != nil {
				return nil, fmt.Errorf("direct answer: %w", err)
			}
		}
		outcome := o.assemble(req, answer, nil, usage, 0, 0, AnswerModeDirect, start)
		emitFinal(sink, outcome)
		return outcome, nil
	}

	// SEARCH_LOOP
	digests, iterations, totalQueries := o.searchLoop(ctx, req, seed, sink, &usage)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// FINAL
	sink.Emit(stepEvent(StepFinalGeneration, "generating final answer", 0))
	mode := AnswerModeSearch
	if totalQueries > 1 {
		mode = AnswerModeMultiSearch
	}

	var answer string
	if len(digests) == 0 {
		answer = noResultsAnswer
	} else {
		contexts, results := synthesisInputs(digests)
		var u openai.Usage
		var err error
		answer, u, err = o.Caller.Synthesize(ctx, req.Query, contexts, results, req.Prompts)
		addUsage(&usage, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msg("synthesis failed after retries; using fallback answer")
			answer = llm.FallbackAnswer(req.Query, results)
		}
	}

	outcome := o.assemble(req, answer, digests, usage, iterations, totalQueries, mode, start)
	emitFinal(sink, outcome)
	return outcome, nil
}

// searchLoop runs up to MaxIterations iterations of query execution,
// digesting, and continuation checks. Digests are appended in
// (iteration, queryIndex) order; all fetch admissions funnel through the
// search client's governor.
func (o *Orchestrator) searchLoop(ctx context.Context, req Request, seed []string, sink Sink, usage *openai.Usage) (digests []Digest, iterations, totalQueries int) {
	current := seed
	maxIter := o.maxIterations()

loop:
	for iter := 0; iter < maxIter && len(current) > 0; iter++ {
		if ctx.Err() != nil {
			return digests, iterations, totalQueries
		}
		iterations = iter + 1
		sink.Emit(stepEvent(StepSearchIteration, fmt.Sprintf("search iteration %d", iterations), iterations))

		anyResults := false
		for qi, q := range current {
			if ctx.Err() != nil {
				return digests, iterations, totalQueries
			}
			totalQueries++
			sink.Emit(Event{Type: EventSearch, Payload: payload(
				"term", q,
				"iteration", iterations,
				"searchIndex", qi,
				"totalSearches", len(current),
			)})

			resp, err := o.Searcher.Search(ctx, q, search.Options{
				Limit:        req.Limit,
				FetchContent: true,
				Timeout:      req.Timeout,
			})
			if err != nil {
				log.Warn().Err(err).Str("query", q).Msg("search failed; continuing with next query")
				sink.Emit(Event{Type: EventSearchResults, Payload: payload(
					"term", q, "resultsCount", 0, "iteration", iterations,
				)})
				continue
			}
			sink.Emit(Event{Type: EventSearchResults, Payload: payload(
				"term", q, "resultsCount", len(resp.Results), "iteration", iterations,
			)})
			if len(resp.Results) == 0 {
				continue
			}
			anyResults = true

			summary, u, err := o.Caller.Digest(ctx, req.Query, q, resp.Results)
			addUsage(usage, u)
			if err != nil {
				log.Warn().Err(err).Str("query", q).Msg("digest failed; using deterministic summary")
				summary = llm.FallbackDigest(q, resp.Results)
			}
			digests = append(digests, Digest{
				SearchQuery: q,
				Summary:     summary,
				Links:       topLinks(resp.Results, digestLinks),
				RawResults:  resp.Results,
				Iteration:   iter,
				QueryIndex:  qi,
			})
		}

		if !anyResults {
			// Nothing came back this iteration; a degraded final answer is
			// synthesized from whatever earlier digests exist.
			break loop
		}

		sink.Emit(stepEvent(StepContinuationCheck, "checking whether to continue searching", iterations))
		if iter == maxIter-1 {
			sink.Emit(Event{Type: EventContinuation, Payload: payload(
				"shouldContinue", false,
				"reasoning", "Maximum search iterations reached",
				"iteration", iterations,
			)})
			break
		}
		cont, u := o.Caller.Continue(ctx, req.Query, digestContexts(digests), iter)
		addUsage(usage, u)
		sink.Emit(Event{Type: EventContinuation, Payload: payload(
			"shouldContinue", cont.Continue,
			"reasoning", cont.Reason,
			"iteration", iterations,
		)})
		if !cont.Continue {
			break
		}
		current = cont.NextQueries
	}

	sink.Emit(stepEvent(StepSearchComplete, "search phase complete", iterations))
	return digests, iterations, totalQueries
}

func (o *Orchestrator) assemble(req Request, answer string, digests []Digest, usage openai.Usage, iterations, totalQueries int, mode string, start time.Time) *Outcome {
	elapsed := time.Since(start).Milliseconds()
	out := &Outcome{
		Query:           req.Query,
		Answer:          answer,
		SearchSummaries: digests,
		Links:           collectLinks(digests),
		LLMResponse: LLMInfo{
			Model:              o.Caller.Model,
			Usage:              usage,
			ProcessingTime:     elapsed,
			SearchIterations:   iterations,
			TotalSearchQueries: totalQueries,
		},
		ProcessingTimeMs: elapsed,
		Timestamp:        timestamp(),
		Mode:             mode,
	}
	if mode != AnswerModeDirect {
		out.SearchResults = flattenResults(digests)
		if out.SearchResults == nil {
			out.SearchResults = []search.Result{}
		}
		if out.SearchSummaries == nil {
			out.SearchSummaries = []Digest{}
		}
		if out.Links == nil {
			out.Links = []Link{}
		}
	}
	return out
}

func emitFinal(sink Sink, out *Outcome) {
	sink.Emit(Event{Type: EventFinalResponse, Payload: payload(
		"response", out.Answer,
		"totalResults", len(out.SearchResults),
		"searchIterations", out.LLMResponse.SearchIterations,
		"searchResults", out.SearchResults,
		"searches", out.SearchSummaries,
	)})
	sink.Emit(Event{Type: EventComplete, Payload: payload(
		"result", out,
		"executionTime", out.ProcessingTimeMs,
	)})
}

func stepEvent(stepType, message string, iteration int) Event {
	p := payload("type", stepType, "message", message)
	if iteration > 0 {
		p["iteration"] = iteration
	}
	return Event{Type: EventStep, Payload: p}
}

func decisionPayload(d llm.Decision) map[string]any {
	if d.Direct() {
		return map[string]any{"response": d.Response}
	}
	return map[string]any{"search_queries": d.Queries}
}

func addUsage(total *openai.Usage, u openai.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

func digestContexts(digests []Digest) []llm.DigestContext {
	out := make([]llm.DigestContext, 0, len(digests))
	for _, d := range digests {
		out = append(out, llm.DigestContext{SearchQuery: d.SearchQuery, Summary: d.Summary})
	}
	return out
}

// synthesisInputs flattens digests in (iteration, queryIndex) order into
// the digest contexts and the deduplicated result list for the final prompt.
func synthesisInputs(digests []Digest) ([]llm.DigestContext, []search.Result) {
	return digestContexts(digests), flattenResults(digests)
}

// flattenResults concatenates digest results in digest order, dropping
// duplicate URLs across queries.
func flattenResults(digests []Digest) []search.Result {
	seen := map[string]struct{}{}
	var out []search.Result
	for _, d := range digests {
		for _, r := range d.RawResults {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func topLinks(results []search.Result, n int) []Link {
	if len(results) < n {
		n = len(results)
	}
	out := make([]Link, 0, n)
	for _, r := range results[:n] {
		out = append(out, Link{Title: r.Title, URL: r.URL, Snippet: snippet(r.Description)})
	}
	return out
}

func collectLinks(digests []Digest) []Link {
	seen := map[string]struct{}{}
	var out []Link
	for _, d := range digests {
		for _, r := range d.RawResults {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, Link{Title: r.Title, URL: r.URL, Snippet: snippet(r.Description)})
			if len(out) == maxResponseLinks {
				return out
			}
		}
	}
	return out
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 200 {
		return s
	}
	for n := 200; n > 0; n-- {
		if (s[n] & 0xC0) != 0x80 {
			return s[:n]
		}
	}
	return ""
}
