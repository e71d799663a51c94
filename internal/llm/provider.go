package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Provider identifies an upstream chat-completion vendor. Each variant
// carries its own endpoint; adding a vendor means adding a case here.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
)

// BaseURL returns the OpenAI-compatible API root for the provider.
func (p Provider) BaseURL() string {
	switch p {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	default:
		return ""
	}
}

// ParseModel splits a "provider:model" spec. A bare model name defaults to
// Groq. Unknown providers are an error so typos fail fast.
func ParseModel(spec string) (Provider, string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("empty model spec")
	}
	idx := strings.Index(spec, ":")
	if idx < 0 {
		return ProviderGroq, spec, nil
	}
	provider := Provider(strings.ToLower(spec[:idx]))
	model := strings.TrimSpace(spec[idx+1:])
	if model == "" {
		return "", "", fmt.Errorf("model spec %q has no model name", spec)
	}
	switch provider {
	case ProviderOpenAI, ProviderGroq:
		return provider, model, nil
	default:
		return "", "", fmt.Errorf("unknown provider %q", string(provider))
	}
}

// Client is the minimal chat-completion interface the call sites need. It
// mirrors the go-openai method so any OpenAI-compatible backend adapts.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient builds a go-openai client for the model spec's provider and
// returns the resolved bare model name alongside it.
func NewClient(apiKey, modelSpec string) (Client, string, error) {
	provider, model, err := ParseModel(modelSpec)
	if err != nil {
		return nil, "", err
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = provider.BaseURL()
	return openai.NewClientWithConfig(cfg), model, nil
}

// DefaultCallTimeout bounds each individual chat-completion call.
const DefaultCallTimeout = 30 * time.Second

// Caller wraps a Client with the model and per-call timeout shared by all
// call sites. The retry policy is applied by Synthesize only; the other
// call sites make a single attempt.
type Caller struct {
	Client  Client
	Model   string
	Timeout time.Duration
	Retry   RetryPolicy
}

func (c *Caller) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultCallTimeout
}

// complete performs one chat call and returns the assistant text and usage.
func (c *Caller) complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, openai.Usage, error) {
	if c.Client == nil || strings.TrimSpace(c.Model) == "" {
		return "", openai.Usage{}, fmt.Errorf("llm caller not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		N:           1,
	})
	if err != nil {
		return "", openai.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage, fmt.Errorf("no choices from model")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", resp.Usage, fmt.Errorf("empty model output")
	}
	return content, resp.Usage, nil
}
