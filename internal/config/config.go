package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brandforge/suggest-engine/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Providers    []ProviderConfig   `yaml:"providers" mapstructure:"providers"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Aggregate    AggregateConfig    `yaml:"aggregate" mapstructure:"aggregate"`
	Pricing      cost.Rates         `yaml:"pricing" mapstructure:"pricing"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// ProviderConfig describes one external AI provider. Read-only during a
// request's lifetime.
type ProviderConfig struct {
	Name      string  `yaml:"name" mapstructure:"name"`
	Kind      string  `yaml:"kind" mapstructure:"kind"`
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	// RPS rate-limits outbound calls to the provider; zero disables.
	RPS float64 `yaml:"rps" mapstructure:"rps"`
	// MinSearchResults is required by search-augmented models.
	MinSearchResults int `yaml:"min_search_results" mapstructure:"min_search_results"`
}

// Usable reports whether the provider can be dispatched to.
func (p ProviderConfig) Usable() bool {
	return p.Enabled && p.Key != "" && p.Model != ""
}

// OrchestratorConfig configures dispatch behavior.
type OrchestratorConfig struct {
	// CallTimeoutSecs bounds each provider call (default 60).
	CallTimeoutSecs int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	// DeadlineSecs bounds the whole request; on expiry the request is
	// force-finalized with whatever results are terminal (default 120).
	DeadlineSecs int `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	// MaxConcurrent bounds provider units running at once.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// PromptCount is how many prompts a prompts-request asks for.
	PromptCount int `yaml:"prompt_count" mapstructure:"prompt_count"`
}

// AggregateConfig configures canonical result assembly.
type AggregateConfig struct {
	MaxPrompts       int  `yaml:"max_prompts" mapstructure:"max_prompts"`
	StripPaths       bool `yaml:"strip_paths" mapstructure:"strip_paths"`
	DefaultRelevance int  `yaml:"default_relevance" mapstructure:"default_relevance"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUGGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "suggest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("orchestrator.call_timeout_secs", 60)
	v.SetDefault("orchestrator.deadline_secs", 120)
	v.SetDefault("orchestrator.max_concurrent", 8)
	v.SetDefault("orchestrator.prompt_count", 10)
	v.SetDefault("aggregate.max_prompts", 25)
	v.SetDefault("aggregate.strip_paths", false)
	v.SetDefault("aggregate.default_relevance", 50)
	v.SetDefault("pricing.default.per_mtok", 6.00)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Pricing.Providers) == 0 {
		cfg.Pricing = cost.DefaultRates()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
