package model

import "time"

// Prompt is a single suggested search prompt with its source provider.
type Prompt struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Competitor is one competitor record, keyed by normalized domain.
type Competitor struct {
	Name       string   `json:"name"`
	Domain     string   `json:"domain"`
	Website    string   `json:"website"`
	Mentions   int      `json:"mentions"`
	Relevance  int      `json:"relevance"`
	Rank       int      `json:"rank"`
	Sentiment  string   `json:"sentiment"`
	Visibility string   `json:"visibility"`
	Sources    []string `json:"sources,omitempty"`
}

// AnalysisFields is the per-provider structured output of an
// industry-analysis request, before aggregation.
type AnalysisFields struct {
	Industries []string `json:"industries,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
	// Sentiment is a 0..1 score when the provider supplied one directly.
	Sentiment *float64 `json:"sentiment,omitempty"`
	// SentimentText holds free-text position commentary to be scored by
	// the fixed word-list heuristic when Sentiment is nil.
	SentimentText string `json:"sentiment_text,omitempty"`
}

// IndustryAnalysis is the aggregated industry-position output.
type IndustryAnalysis struct {
	Industries []string `json:"industries"`
	SourceURLs []string `json:"source_urls"`
	Sentiment  float64  `json:"sentiment"`
	Providers  []string `json:"providers"`
}

// ProviderFailure records a failed provider for diagnostics.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// AggregatedResult is the canonical deduplicated output for a request,
// cached by fingerprint.
type AggregatedResult struct {
	Fingerprint string            `json:"fingerprint"`
	Kind        OutputKind        `json:"kind"`
	RequestID   string            `json:"request_id"`
	Prompts     []Prompt          `json:"prompts,omitempty"`
	Competitors []Competitor      `json:"competitors,omitempty"`
	Analysis    *IndustryAnalysis `json:"analysis,omitempty"`
	Failures    []ProviderFailure `json:"failures,omitempty"`
	CostUSD     float64           `json:"cost_usd"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Empty reports whether aggregation produced no items at all.
func (a *AggregatedResult) Empty() bool {
	return len(a.Prompts) == 0 && len(a.Competitors) == 0 && a.Analysis == nil
}
