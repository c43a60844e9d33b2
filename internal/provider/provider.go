// Package provider defines the adapter interface over external AI
// providers and the per-shape implementations. Each adapter encapsulates
// one provider family's request body, auth, and raw-text extraction from
// its response envelope. Adapters never retry; retry policy belongs to
// the caller.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brandforge/suggest-engine/internal/config"
	"github.com/brandforge/suggest-engine/internal/model"
)

// DefaultCallTimeout bounds a single provider call when no override is
// configured.
const DefaultCallTimeout = 60 * time.Second

// Kind identifies a provider's wire shape. Selection happens on this
// closed set rather than on ad-hoc name comparisons.
type Kind string

const (
	KindOpenAI     Kind = "openai"
	KindPerplexity Kind = "perplexity"
	KindGemini     Kind = "gemini"
	KindAnthropic  Kind = "anthropic"
)

// Adapter is the capability interface over one external AI provider.
type Adapter interface {
	// Name returns the provider identifier used in results and pricing.
	Name() string
	// Call sends one completion request and extracts the raw completion
	// text. Errors are classified (ProviderUnavailable,
	// MalformedEnvelope); the adapter performs no retries.
	Call(ctx context.Context, prompt string) (string, model.TokenUsage, error)
}

// New builds the adapter for a provider config, selecting the
// implementation by Kind.
func New(cfg config.ProviderConfig, timeout time.Duration) (Adapter, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	switch Kind(cfg.Kind) {
	case KindOpenAI:
		return newOpenAI(cfg, timeout), nil
	case KindPerplexity:
		return newPerplexity(cfg, timeout), nil
	case KindGemini:
		return newGemini(cfg, timeout), nil
	case KindAnthropic:
		return newAnthropic(cfg, timeout), nil
	default:
		return nil, eris.Errorf("provider: unknown kind %q for provider %q", cfg.Kind, cfg.Name)
	}
}

// Registry holds the adapters enabled for dispatch.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, keeping registration order for deterministic
// dispatch listings.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Name()]; !ok {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns registered adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// FromConfigs builds a registry from the usable provider configs.
// Providers that are disabled or missing credentials are skipped; an
// unknown kind is an error because it indicates a broken config rather
// than an intentionally disabled integration.
func FromConfigs(cfgs []config.ProviderConfig, timeout time.Duration) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range cfgs {
		if !cfg.Usable() {
			continue
		}
		a, err := New(cfg, timeout)
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	return reg, nil
}
