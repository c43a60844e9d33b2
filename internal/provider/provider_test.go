package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/suggest-engine/internal/config"
)

func openAIConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Name:    "openai",
		Kind:    "openai",
		Enabled: true,
		Key:     "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: baseURL,
	}
}

func TestChatAdapter_Call(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantText  string
		wantClass Class
	}{
		{
			name:     "success",
			status:   http.StatusOK,
			body:     `{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":4,"completion_tokens":2}}`,
			wantText: "hello",
		},
		{
			name:      "non-2xx is unavailable",
			status:    http.StatusBadGateway,
			body:      `{"error":"upstream"}`,
			wantClass: ClassUnavailable,
		},
		{
			name:      "broken envelope is malformed",
			status:    http.StatusOK,
			body:      `{not json`,
			wantClass: ClassMalformedEnvelope,
		},
		{
			name:      "missing completion field is malformed",
			status:    http.StatusOK,
			body:      `{"choices":[],"usage":{}}`,
			wantClass: ClassMalformedEnvelope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a, err := New(openAIConfig(srv.URL), time.Second)
			require.NoError(t, err)

			text, usage, err := a.Call(context.Background(), "prompt")
			if tt.wantClass != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantClass, ClassOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, 4, usage.InputTokens)
			assert.Equal(t, 2, usage.OutputTokens)
		})
	}
}

func TestChatAdapter_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"late"}}],"usage":{}}`))
	}))
	defer srv.Close()

	a, err := New(openAIConfig(srv.URL), 20*time.Millisecond)
	require.NoError(t, err)

	_, _, err = a.Call(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, ClassUnavailable, ClassOf(err))
}

func TestGeminiAdapter_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"gemini says"}]}}],"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":3}}`))
	}))
	defer srv.Close()

	a, err := New(config.ProviderConfig{
		Name: "gemini", Kind: "gemini", Enabled: true,
		Key: "k", Model: "gemini-2.0-flash", BaseURL: srv.URL,
	}, time.Second)
	require.NoError(t, err)

	text, usage, err := a.Call(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "gemini says", text)
	assert.Equal(t, 8, usage.InputTokens)
	assert.Equal(t, 3, usage.OutputTokens)
}

func TestGeminiAdapter_MissingTextIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	a, err := New(config.ProviderConfig{
		Name: "gemini", Kind: "gemini", Enabled: true,
		Key: "k", Model: "m", BaseURL: srv.URL,
	}, time.Second)
	require.NoError(t, err)

	_, _, err = a.Call(context.Background(), "prompt")
	assert.Equal(t, ClassMalformedEnvelope, ClassOf(err))
}

func TestPerplexityAdapter_SendsMinSearchResults(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{}}`))
	}))
	defer srv.Close()

	a, err := New(config.ProviderConfig{
		Name: "perplexity", Kind: "perplexity", Enabled: true,
		Key: "k", Model: "sonar-pro", BaseURL: srv.URL, MinSearchResults: 7,
	}, time.Second)
	require.NoError(t, err)

	_, _, err = a.Call(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Contains(t, gotBody, `"search_results_count_min":7`)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(config.ProviderConfig{Name: "x", Kind: "telegraph"}, time.Second)
	assert.Error(t, err)
}

func TestFromConfigs_SkipsUnusable(t *testing.T) {
	reg, err := FromConfigs([]config.ProviderConfig{
		{Name: "a", Kind: "openai", Enabled: true, Key: "k", Model: "m"},
		{Name: "b", Kind: "openai", Enabled: false, Key: "k", Model: "m"},
		{Name: "c", Kind: "gemini", Enabled: true, Key: "", Model: "m"},
	}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len())
	assert.NotNil(t, reg.Get("a"))
	assert.Nil(t, reg.Get("b"))
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	reg, err := FromConfigs([]config.ProviderConfig{
		{Name: "z", Kind: "openai", Enabled: true, Key: "k", Model: "m"},
		{Name: "a", Kind: "openai", Enabled: true, Key: "k", Model: "m"},
	}, time.Second)
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "z", list[0].Name())
	assert.Equal(t, "a", list[1].Name())
}
