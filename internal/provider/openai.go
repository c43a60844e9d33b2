package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/brandforge/suggest-engine/internal/config"
	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/pkg/chatapi"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultPerplexityBaseURL = "https://api.perplexity.ai"

	// defaultMinSearchResults is required by search-augmented models
	// when the config does not set one.
	defaultMinSearchResults = 3

	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

// chatAdapter serves the OpenAI-compatible chat-completions family
// (OpenAI itself and Perplexity's search-augmented models).
type chatAdapter struct {
	name      string
	model     string
	maxTokens int
	client    chatapi.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	search    *chatapi.SearchOptions
}

func newOpenAI(cfg config.ProviderConfig, timeout time.Duration) *chatAdapter {
	return newChatAdapter(cfg, timeout, defaultOpenAIBaseURL, nil)
}

func newPerplexity(cfg config.ProviderConfig, timeout time.Duration) *chatAdapter {
	minResults := cfg.MinSearchResults
	if minResults <= 0 {
		minResults = defaultMinSearchResults
	}
	return newChatAdapter(cfg, timeout, defaultPerplexityBaseURL, &chatapi.SearchOptions{MinResults: minResults})
}

func newChatAdapter(cfg config.ProviderConfig, timeout time.Duration, defaultBaseURL string, search *chatapi.SearchOptions) *chatAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	a := &chatAdapter{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    chatapi.NewClient(cfg.Key, baseURL, chatapi.WithTimeout(timeout)),
		timeout:   timeout,
		search:    search,
	}
	if cfg.RPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return a
}

func (a *chatAdapter) Name() string {
	return a.name
}

func (a *chatAdapter) Call(ctx context.Context, prompt string) (string, model.TokenUsage, error) {
	var usage model.TokenUsage

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", usage, Unavailable(a.name, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	temp := defaultTemperature
	maxTokens := a.maxTokens
	resp, err := a.client.ChatCompletion(ctx, chatapi.ChatCompletionRequest{
		Model:         a.model,
		Messages:      []chatapi.Message{{Role: "user", Content: prompt}},
		Temperature:   &temp,
		MaxTokens:     &maxTokens,
		SearchOptions: a.search,
	})
	if err != nil {
		return "", usage, classify(a.name, err)
	}

	usage = model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", usage, Malformed(a.name, errMissingCompletion)
	}
	return resp.Choices[0].Message.Content, usage, nil
}
