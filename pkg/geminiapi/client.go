// Package geminiapi implements a minimal Gemini generateContent client.
// The response envelope nests the completion text differently from the
// chat-completions family (candidates[0].content.parts[0].text), so the
// client extracts fields by path instead of mirroring the full schema.
package geminiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 60 * time.Second
)

// Client generates content against the Gemini API.
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is the request for POST /models/{model}:generateContent.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature *float64
	MaxTokens   *int
}

// GenerateResponse holds the extracted completion and token counts.
type GenerateResponse struct {
	Text         string
	PromptTokens int
	OutputTokens int
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return eris.Errorf("geminiapi: unexpected status %d: %s", e.StatusCode, e.Body).Error()
}

// ErrMissingText is returned when the envelope decodes but carries no
// completion text at the expected path.
var ErrMissingText = eris.New("geminiapi: response missing candidate text")

// ErrInvalidEnvelope is returned when the response body is not valid JSON.
var ErrInvalidEnvelope = eris.New("geminiapi: response is not valid JSON")

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTimeout overrides the default 60s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Gemini API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": req.Prompt}}},
		},
	}
	genCfg := map[string]any{}
	if req.Temperature != nil {
		genCfg["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		genCfg["maxOutputTokens"] = *req.MaxTokens
	}
	if len(genCfg) > 0 {
		body["generationConfig"] = genCfg
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "geminiapi: marshal request")
	}

	url := c.baseURL + "/models/" + req.Model + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "geminiapi: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "geminiapi: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geminiapi: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if !gjson.ValidBytes(respBody) {
		return nil, ErrInvalidEnvelope
	}

	text := gjson.GetBytes(respBody, "candidates.0.content.parts.0.text")
	if !text.Exists() || text.String() == "" {
		return nil, ErrMissingText
	}

	return &GenerateResponse{
		Text:         text.String(),
		PromptTokens: int(gjson.GetBytes(respBody, "usageMetadata.promptTokenCount").Int()),
		OutputTokens: int(gjson.GetBytes(respBody, "usageMetadata.candidatesTokenCount").Int()),
	}, nil
}
