package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/app"
	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/orchestrate"
)

// progressSink narrates pipeline phases on stderr while the CLI waits.
type progressSink struct{}

func (progressSink) Emit(ev orchestrate.Event) {
	switch ev.Type {
	case orchestrate.EventStep:
		log.Info().Str("phase", fmt.Sprint(ev.Payload["type"])).Msg(fmt.Sprint(ev.Payload["message"]))
	case orchestrate.EventSearch:
		log.Info().Str("term", fmt.Sprint(ev.Payload["term"])).Msg("searching")
	case orchestrate.EventSearchResults:
		log.Info().Str("term", fmt.Sprint(ev.Payload["term"])).
			Interface("count", ev.Payload["resultsCount"]).Msg("search done")
	case orchestrate.EventContinuation:
		log.Info().Interface("continue", ev.Payload["shouldContinue"]).
			Str("reason", fmt.Sprint(ev.Payload["reasoning"])).Msg("continuation")
	}
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	_ = godotenv.Load()

	var (
		query         string
		model         string
		mode          string
		limit         int
		scrapeTimeout time.Duration
		outputPath    string
		pdfPath       string
		verbose       bool
	)

	flag.StringVar(&query, "q", "", "Question to research")
	flag.StringVar(&model, "model", "", "provider:model, e.g. groq:llama-3.3-70b-versatile")
	flag.StringVar(&mode, "mode", orchestrate.ModeAuto, "auto | search | direct")
	flag.IntVar(&limit, "limit", 5, "Top-K results per query")
	flag.DurationVar(&scrapeTimeout, "scrape.timeout", 10*time.Second, "Per-scrape timeout")
	flag.StringVar(&outputPath, "output", "", "Write the answer to this file instead of stdout")
	flag.StringVar(&pdfPath, "pdf", "", "Also render the answer as a PDF at this path")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if query == "" && flag.NArg() > 0 {
		query = flag.Arg(0)
	}
	if query == "" {
		log.Fatal().Msg("a question is required: goanswer -q \"...\"")
	}
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("LLM_API_KEY is required")
	}
	switch mode {
	case orchestrate.ModeAuto, orchestrate.ModeSearch, orchestrate.ModeDirect:
	default:
		log.Fatal().Str("mode", mode).Msg("mode must be auto, search, or direct")
	}

	cfg := app.Config{DefaultModel: model}
	app.ApplyEnvToConfig(&cfg)

	orch, err := app.BuildOrchestrator(cfg, apiKey, model)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline init failed")
	}

	out, err := orch.Run(context.Background(), orchestrate.Request{
		Query:        query,
		SearchMode:   mode,
		Limit:        limit,
		FetchContent: true,
		Timeout:      scrapeTimeout,
		Prompts:      llm.Prompts{},
	}, progressSink{})
	if err != nil {
		log.Fatal().Err(err).Msg("research failed")
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(renderMarkdown(out)), 0o644); err != nil {
			log.Fatal().Err(err).Msg("write output")
		}
		log.Info().Str("out", outputPath).Msg("wrote answer")
	} else {
		fmt.Println(out.Answer)
	}
	if pdfPath != "" {
		if err := app.WriteAnswerPDF(out, pdfPath); err != nil {
			log.Fatal().Err(err).Msg("write pdf")
		}
		log.Info().Str("out", pdfPath).Msg("wrote pdf")
	}
}

// renderMarkdown lays the outcome out as a small Markdown document.
func renderMarkdown(out *orchestrate.Outcome) string {
	md := "# " + out.Query + "\n\n" + out.Answer + "\n"
	if len(out.Links) > 0 {
		md += "\n## Sources\n\n"
		for i, l := range out.Links {
			title := l.Title
			if title == "" {
				title = l.URL
			}
			md += fmt.Sprintf("%d. [%s](%s)\n", i+1, title, l.URL)
		}
	}
	md += fmt.Sprintf("\n---\nmode: %s, iterations: %d, queries: %d, elapsed: %dms\n",
		out.Mode, out.LLMResponse.SearchIterations, out.LLMResponse.TotalSearchQueries, out.ProcessingTimeMs)
	return md
}
