package app

import (
	"github.com/hyperifyio/goanswer/internal/budget"
	"github.com/hyperifyio/goanswer/internal/fetch"
	"github.com/hyperifyio/goanswer/internal/httpapi"
	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/orchestrate"
	"github.com/hyperifyio/goanswer/internal/search"
)

// NewPipelineFactory wires the per-request research pipeline. Each request
// gets its own governor and search client; nothing is shared across
// requests.
func NewPipelineFactory(cfg Config) httpapi.PipelineFactory {
	cfg = cfg.withDefaults()
	return func(apiKey, modelSpec string) (*orchestrate.Orchestrator, error) {
		return BuildOrchestrator(cfg, apiKey, modelSpec)
	}
}

// BuildOrchestrator assembles one request's pipeline: governor, fetcher,
// search client with a cheap-model summarizer, and the main caller.
func BuildOrchestrator(cfg Config, apiKey, modelSpec string) (*orchestrate.Orchestrator, error) {
	cfg = cfg.withDefaults()
	if modelSpec == "" {
		modelSpec = cfg.DefaultModel
	}
	client, model, err := llm.NewClient(apiKey, modelSpec)
	if err != nil {
		return nil, err
	}
	caller := &llm.Caller{Client: client, Model: model, Retry: llm.DefaultRetryPolicy()}

	summarizer, err := buildSummarizer(cfg, apiKey)
	if err != nil {
		return nil, err
	}

	gov := budget.NewGovernor()
	searcher := &search.Client{
		Fetcher:    &fetch.Client{Timeout: cfg.DefaultTimeout},
		Governor:   gov,
		BaseURL:    cfg.SearchBaseURL,
		Summarizer: summarizer,
	}

	return &orchestrate.Orchestrator{Searcher: searcher, Caller: caller}, nil
}

// buildSummarizer wires the pre-summarization caller on the cheap model.
// The same credential serves both models.
func buildSummarizer(cfg Config, apiKey string) (*llm.Summarizer, error) {
	client, model, err := llm.NewClient(apiKey, cfg.SummarizerModel)
	if err != nil {
		return nil, err
	}
	return &llm.Summarizer{Caller: &llm.Caller{Client: client, Model: model}}, nil
}
