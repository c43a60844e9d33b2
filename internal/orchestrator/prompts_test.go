package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandforge/suggest-engine/internal/model"
)

func promptRequest(kind model.OutputKind, country string) *model.Request {
	return &model.Request{
		Target: model.Target{
			BrandID:     "brand-1",
			Name:        "Acme",
			URL:         "https://acme.com",
			Description: "project management for agencies",
		},
		Kind:    kind,
		Country: country,
	}
}

func TestBuildPrompt_Prompts(t *testing.T) {
	p := buildPrompt(promptRequest(model.KindPrompts, "us"), 10, nil)

	assert.Contains(t, p, "10 search prompts")
	assert.Contains(t, p, "Acme")
	assert.Contains(t, p, "https://acme.com")
	assert.Contains(t, p, "project management for agencies")
	assert.Contains(t, p, "United States")
	assert.Contains(t, p, "JSON array of strings")
}

func TestBuildPrompt_CompetitorsWithExclusions(t *testing.T) {
	p := buildPrompt(promptRequest(model.KindCompetitors, ""), 10, []string{"alpha.com", "beta.com"})

	assert.Contains(t, p, "competitors of Acme")
	assert.Contains(t, p, "Do not include these domains: alpha.com, beta.com.")
	assert.Contains(t, p, `"relevance"`)
	assert.NotContains(t, p, "market.")
}

func TestBuildPrompt_Analysis(t *testing.T) {
	p := buildPrompt(promptRequest(model.KindIndustryAnalysis, "de"), 10, nil)

	assert.Contains(t, p, "market position of Acme")
	assert.Contains(t, p, "Germany")
	assert.Contains(t, p, `"industries"`)
	assert.Contains(t, p, `"sentiment"`)
}

func TestRegionName(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"us", "United States"},
		{"US", "United States"},
		{"de", "Germany"},
		{"", ""},
		{"not-a-code", "NOT-A-CODE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, regionName(tt.country), tt.country)
	}
}

func TestMergeExclusions(t *testing.T) {
	got := mergeExclusions(
		[]string{"Alpha.com", "beta.com", ""},
		[]model.Competitor{{Domain: "alpha.com"}, {Domain: "gamma.com"}},
	)
	assert.Equal(t, []string{"alpha.com", "beta.com", "gamma.com"}, got)
}
