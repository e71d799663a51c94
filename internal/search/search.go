package search

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/budget"
	"github.com/hyperifyio/goanswer/internal/extract"
	"github.com/hyperifyio/goanswer/internal/fetch"
	"github.com/hyperifyio/goanswer/internal/score"
)

// DefaultBaseURL is the HTML search frontend queried for results.
const DefaultBaseURL = "https://html.duckduckgo.com/html/"

// maxProcessed caps how many ranked results are processed for content,
// regardless of the requested limit.
const maxProcessed = 8

// preSummarizeChars is the content length beyond which a page is compressed
// through the summarizer before admission.
const preSummarizeChars = 5_000

// preSummarizeResults bounds how many results are eligible for
// pre-summarization within one query.
const preSummarizeResults = 5

// Result is a single scored search hit, with content fields populated under
// governor control when content fetching is enabled.
type Result struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Description    string `json:"description"`
	Score          int    `json:"score"`
	EngineScore    string `json:"engineScore,omitempty"`
	Content        string `json:"content,omitempty"`
	ContentLength  int    `json:"contentLength,omitempty"`
	Truncated      bool   `json:"truncated,omitempty"`
	OriginalLength int    `json:"originalLength,omitempty"`
	ContentError   string `json:"contentError,omitempty"`
	FetchTimeMs    int64  `json:"fetchTimeMs,omitempty"`
}

// Response is the outcome of one search query.
type Response struct {
	Results          []Result     `json:"results"`
	TotalFound       int          `json:"totalFound"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
	Memory           budget.State `json:"memory"`
}

// Options tune a single Search call.
type Options struct {
	// Limit caps the returned results. Zero means 5.
	Limit int
	// FetchContent populates Result content fields for the top results.
	FetchContent bool
	// Timeout bounds each scrape fetch. Zero keeps the Client's Fetcher
	// timeout (10s when that is unset too).
	Timeout time.Duration
}

// SearchError marks a failed search-page fetch; the query is never retried.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Summarizer compresses long page content before it joins the context.
// Implementations are expected to keep output under about 300 words.
type Summarizer interface {
	Summarize(ctx context.Context, content, query string) (string, error)
}

// Client executes one search query against the HTML frontend and runs the
// extract/score/content pipeline over the results. Content fetching is
// sequential so the governor can cut off admissions deterministically.
type Client struct {
	Fetcher  *fetch.Client
	Governor *budget.Governor
	// BaseURL overrides the search frontend, mainly for tests.
	BaseURL string
	// Summarizer, when set, pre-summarizes very long pages.
	Summarizer Summarizer
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

// Search runs the query and returns ranked, deduplicated, quality-filtered
// results. A search-page fetch failure returns a *SearchError.
func (c *Client) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	pageURL := c.baseURL() + "?q=" + url.QueryEscape(query)
	body, err := c.searchFetcher(opts).Get(ctx, pageURL)
	if err != nil {
		return nil, &SearchError{Query: query, Err: err}
	}

	records := extract.SearchResults(body)
	kept := rankResults(records, query)

	process := kept
	if len(process) > maxProcessed {
		process = process[:maxProcessed]
	}
	if opts.FetchContent {
		c.fetchContents(ctx, query, process, opts)
	}

	results := process
	if len(results) > limit {
		results = results[:limit]
	}

	resp := &Response{
		Results:          results,
		TotalFound:       len(records),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	if c.Governor != nil {
		resp.Memory = c.Governor.Snapshot()
	}
	return resp, nil
}

// rankResults builds scored Results from raw records, deduplicates by exact
// URL, drops hits under the quality threshold, and sorts descending.
func rankResults(records []extract.SearchResult, query string) []Result {
	seen := map[string]struct{}{}
	kept := make([]Result, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		s := score.Result(score.Input{
			Title:       rec.Title,
			URL:         rec.URL,
			Description: rec.Description,
			EngineScore: rec.EngineScore,
		}, query)
		if s < score.QualityThreshold {
			continue
		}
		kept = append(kept, Result{
			Title:       rec.Title,
			URL:         rec.URL,
			Description: rec.Description,
			Score:       s,
			EngineScore: rec.EngineScore,
		})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

func (c *Client) searchFetcher(opts Options) *fetch.Client {
	f := &fetch.Client{}
	if c.Fetcher != nil {
		clone := *c.Fetcher
		f = &clone
	}
	if opts.Timeout > 0 {
		f.Timeout = opts.Timeout
	}
	return f
}

// fetchContents populates content for results in rank order, strictly
// sequentially. Once the governor rejects an admission, the remaining
// results are skipped without fetching.
func (c *Client) fetchContents(ctx context.Context, query string, results []Result, opts Options) {
	gov := c.Governor
	if gov == nil {
		gov = budget.NewGovernor()
		c.Governor = gov
	}
	fetcher := c.searchFetcher(opts)

	skipReason := ""
	for i := range results {
		r := &results[i]
		if skipReason != "" {
			r.ContentError = "Skipped due to memory limit (" + skipReason + ")"
			continue
		}
		t0 := time.Now()
		body, err := fetcher.Get(ctx, r.URL)
		r.FetchTimeMs = time.Since(t0).Milliseconds()
		if err != nil {
			r.ContentError = err.Error()
			continue
		}

		text := extract.PageText(body)
		if len(text) > preSummarizeChars && i < preSummarizeResults && c.Summarizer != nil {
			if summary, serr := c.Summarizer.Summarize(ctx, text, query); serr == nil && strings.TrimSpace(summary) != "" {
				text = summary
			} else if serr != nil {
				log.Debug().Err(serr).Str("url", r.URL).Msg("pre-summarize failed; keeping raw text")
			}
		}
		originalLen := len(text)
		text = extract.CapChars(text, gov.MaxPerPage())

		adm := gov.Admit(text)
		if !adm.Admitted {
			skipReason = adm.Reason
			r.ContentError = "Skipped due to memory limit (" + adm.Reason + ")"
			continue
		}
		content, tokenTruncated := gov.AddContent(adm.Text)
		if content == "" {
			skipReason = "token budget exhausted"
			r.ContentError = "Skipped due to memory limit (" + skipReason + ")"
			continue
		}
		truncated := adm.Truncated || tokenTruncated || originalLen > len(content)
		if adm.Truncated {
			content += "\n" + adm.Note
		} else if tokenTruncated {
			content += "\n" + budget.NoteTokenOptimized
		}
		r.Content = content
		r.ContentLength = len(content)
		r.Truncated = truncated
		r.OriginalLength = originalLen
	}
}
