package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/budget"
	"github.com/hyperifyio/goanswer/internal/fetch"
	"github.com/hyperifyio/goanswer/internal/search"
)

// debugsearch runs one query through the full extract/score/filter pipeline
// and prints the ranked results as JSON, for poking at the search frontend
// without the rest of the service.
func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		query   string
		limit   int
		content bool
		base    string
		timeout time.Duration
	)
	flag.StringVar(&query, "q", "", "Search query")
	flag.IntVar(&limit, "limit", 8, "Result cap")
	flag.BoolVar(&content, "content", false, "Fetch and extract page content")
	flag.StringVar(&base, "base", "", "Search frontend base URL override")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Per-fetch timeout")
	flag.Parse()

	if query == "" && flag.NArg() > 0 {
		query = flag.Arg(0)
	}
	if query == "" {
		log.Fatal().Msg("a query is required: debugsearch -q \"...\"")
	}

	client := &search.Client{
		Fetcher:  &fetch.Client{},
		Governor: budget.NewGovernor(),
		BaseURL:  base,
	}
	resp, err := client.Search(context.Background(), query, search.Options{
		Limit:        limit,
		FetchContent: content,
		Timeout:      timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("search failed")
	}

	log.Info().Int("totalFound", resp.TotalFound).Int("returned", len(resp.Results)).
		Int64("elapsedMs", resp.ProcessingTimeMs).Msg("search complete")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
}
