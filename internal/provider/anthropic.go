package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/brandforge/suggest-engine/internal/config"
	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/pkg/anthropicapi"
)

// anthropicAdapter serves the Anthropic Messages API via the official SDK.
type anthropicAdapter struct {
	name      string
	model     string
	maxTokens int64
	client    anthropicapi.Client
	timeout   time.Duration
	limiter   *rate.Limiter
}

func newAnthropic(cfg config.ProviderConfig, timeout time.Duration) *anthropicAdapter {
	var opts []anthropicapi.Option
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicapi.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	a := &anthropicAdapter{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    anthropicapi.NewClient(cfg.Key, opts...),
		timeout:   timeout,
	}
	if cfg.RPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return a
}

func (a *anthropicAdapter) Name() string {
	return a.name
}

func (a *anthropicAdapter) Call(ctx context.Context, prompt string) (string, model.TokenUsage, error) {
	var usage model.TokenUsage

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", usage, Unavailable(a.name, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	temp := defaultTemperature
	resp, err := a.client.CreateMessage(ctx, anthropicapi.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Prompt:      prompt,
		Temperature: &temp,
	})
	if err != nil {
		return "", usage, classify(a.name, err)
	}

	usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	if resp.Text == "" {
		return "", usage, Malformed(a.name, errMissingCompletion)
	}
	return resp.Text, usage, nil
}
