package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Orchestrator.CallTimeoutSecs)
	assert.Equal(t, 120, cfg.Orchestrator.DeadlineSecs)
	assert.Equal(t, 8, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, 25, cfg.Aggregate.MaxPrompts)
	assert.False(t, cfg.Aggregate.StripPaths)
	assert.Equal(t, 50, cfg.Aggregate.DefaultRelevance)
	// Pricing falls back to the fixed default table.
	assert.InDelta(t, 6.00, cfg.Pricing.Default.PerMTok, 0.001)
	assert.NotEmpty(t, cfg.Pricing.Providers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/suggest
log:
  level: debug
  format: console
providers:
  - name: openai
    kind: openai
    enabled: true
    key: sk-test
    model: gpt-4o-mini
  - name: perplexity
    kind: perplexity
    enabled: false
    key: pplx-test
    model: sonar-pro
    min_search_results: 5
orchestrator:
  deadline_secs: 30
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Orchestrator.DeadlineSecs)
	require.Len(t, cfg.Providers, 2)
	assert.True(t, cfg.Providers[0].Usable())
	assert.False(t, cfg.Providers[1].Usable())
	assert.Equal(t, 5, cfg.Providers[1].MinSearchResults)
	// Unset sections keep their defaults.
	assert.Equal(t, 60, cfg.Orchestrator.CallTimeoutSecs)
}

func TestProviderConfig_Usable(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProviderConfig
		want bool
	}{
		{name: "enabled with key and model", cfg: ProviderConfig{Enabled: true, Key: "k", Model: "m"}, want: true},
		{name: "disabled", cfg: ProviderConfig{Enabled: false, Key: "k", Model: "m"}, want: false},
		{name: "missing key", cfg: ProviderConfig{Enabled: true, Model: "m"}, want: false},
		{name: "missing model", cfg: ProviderConfig{Enabled: true, Key: "k"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Usable())
		})
	}
}

func TestInitLogger_RejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}
