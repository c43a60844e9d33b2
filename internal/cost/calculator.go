package cost

import (
	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/model"
)

// Rate holds per-provider token pricing (USD per million tokens, blended
// across input and output).
type Rate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Rates maps provider name to its token rate, with a fallback for
// providers not in the table.
type Rates struct {
	Providers map[string]Rate `yaml:"providers" mapstructure:"providers"`
	Default   Rate            `yaml:"default" mapstructure:"default"`
}

// Calculator computes estimated cost for provider token usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Zero-valued
// entries fall back to the default rate.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Cost returns the estimated USD cost of a provider call.
func (c *Calculator) Cost(provider string, usage model.TokenUsage) float64 {
	rate, ok := c.rates.Providers[provider]
	if !ok || rate.PerMTok == 0 {
		rate = c.rates.Default
	}
	return (float64(usage.Total()) / 1e6) * rate.PerMTok
}

// LogCost emits a structured cost-attribution line for a provider call.
func (c *Calculator) LogCost(provider, kind string, usage model.TokenUsage) {
	zap.L().Info("cost attribution",
		zap.String("provider", provider),
		zap.String("kind", kind),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", c.Cost(provider, usage)),
	)
}

// DefaultRates returns the fixed default pricing table. Rates are blended
// per-MTok figures; unknown providers use the default entry.
func DefaultRates() Rates {
	return Rates{
		Providers: map[string]Rate{
			"openai":     {PerMTok: 5.00},
			"anthropic":  {PerMTok: 9.00},
			"perplexity": {PerMTok: 4.00},
			"gemini":     {PerMTok: 2.50},
		},
		Default: Rate{PerMTok: 6.00},
	}
}
