package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/brandforge/suggest-engine/internal/config"
	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/pkg/geminiapi"
)

// errMissingCompletion marks an envelope that decoded but carried no
// completion text in the expected field.
var errMissingCompletion = eris.New("provider: envelope missing completion text")

// geminiAdapter serves Gemini's generateContent wire shape.
type geminiAdapter struct {
	name      string
	model     string
	maxTokens int
	client    geminiapi.Client
	timeout   time.Duration
	limiter   *rate.Limiter
}

func newGemini(cfg config.ProviderConfig, timeout time.Duration) *geminiAdapter {
	opts := []geminiapi.Option{geminiapi.WithTimeout(timeout)}
	if cfg.BaseURL != "" {
		opts = append(opts, geminiapi.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	a := &geminiAdapter{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    geminiapi.NewClient(cfg.Key, opts...),
		timeout:   timeout,
	}
	if cfg.RPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return a
}

func (a *geminiAdapter) Name() string {
	return a.name
}

func (a *geminiAdapter) Call(ctx context.Context, prompt string) (string, model.TokenUsage, error) {
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
	resp, err := a.client.GenerateContent(ctx, geminiapi.GenerateRequest{
		Model:       a.model,
		Prompt:      prompt,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", usage, classify(a.name, err)
	}

	usage = model.TokenUsage{
		InputTokens:  resp.PromptTokens,
		OutputTokens: resp.OutputTokens,
	}
	return resp.Text, usage, nil
}
