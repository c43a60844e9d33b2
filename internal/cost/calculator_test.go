package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandforge/suggest-engine/internal/model"
)

func TestCost_KnownProvider(t *testing.T) {
	calc := NewCalculator(Rates{
		Providers: map[string]Rate{"openai": {PerMTok: 5.00}},
		Default:   Rate{PerMTok: 6.00},
	})

	usage := model.TokenUsage{InputTokens: 600_000, OutputTokens: 400_000}
	assert.InDelta(t, 5.00, calc.Cost("openai", usage), 1e-9)
}

func TestCost_UnknownProviderFallsBack(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	usage := model.TokenUsage{InputTokens: 1_000_000}
	assert.InDelta(t, 6.00, calc.Cost("mystery", usage), 1e-9)
}

func TestCost_ZeroRateFallsBack(t *testing.T) {
	calc := NewCalculator(Rates{
		Providers: map[string]Rate{"openai": {}},
		Default:   Rate{PerMTok: 2.00},
	})

	usage := model.TokenUsage{InputTokens: 500_000}
	assert.InDelta(t, 1.00, calc.Cost("openai", usage), 1e-9)
}
