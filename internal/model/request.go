package model

import (
	"time"
)

// OutputKind identifies what a request asks the providers to produce.
type OutputKind string

const (
	KindPrompts          OutputKind = "prompts"
	KindCompetitors      OutputKind = "competitors"
	KindIndustryAnalysis OutputKind = "industry-analysis"
)

// Valid reports whether the kind is one of the known output kinds.
func (k OutputKind) Valid() bool {
	switch k {
	case KindPrompts, KindCompetitors, KindIndustryAnalysis:
		return true
	}
	return false
}

// RequestStatus tracks a request through its lifecycle. Transitions are
// forward-only: pending → in_progress → completed|failed.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// statusRank orders statuses so that transitions can be checked as
// strictly increasing.
func statusRank(s RequestStatus) int {
	switch s {
	case RequestPending:
		return 0
	case RequestInProgress:
		return 1
	case RequestCompleted, RequestFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next is a legal forward
// transition.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	return statusRank(next) > statusRank(s)
}

// Target identifies the entity a request is about (a brand or a post).
type Target struct {
	BrandID     string `json:"brand_id,omitempty"`
	Name        string `json:"name,omitempty"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Request is one logical ask fanned out across providers. Immutable after
// dispatch except for Status.
type Request struct {
	ID          string        `json:"id"`
	Target      Target        `json:"target"`
	Kind        OutputKind    `json:"kind"`
	Country     string        `json:"country,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Status      RequestStatus `json:"status"`
	Providers   []string      `json:"providers,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ResultStatus tracks a single provider's outcome within a request.
type ResultStatus string

const (
	ResultProcessing ResultStatus = "processing"
	ResultCompleted  ResultStatus = "completed"
	ResultError      ResultStatus = "error"
)

// Terminal reports whether the provider result is final.
func (s ResultStatus) Terminal() bool {
	return s == ResultCompleted || s == ResultError
}

// TokenUsage tracks token consumption for one provider call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Payload holds the kind-specific structured output parsed from one
// provider's raw text. Exactly one field is populated, matching the
// request's kind.
type Payload struct {
	Prompts     []string        `json:"prompts,omitempty"`
	Competitors []Competitor    `json:"competitors,omitempty"`
	Analysis    *AnalysisFields `json:"analysis,omitempty"`
}

// Empty reports whether the payload carries no parsed items.
func (p *Payload) Empty() bool {
	if p == nil {
		return true
	}
	return len(p.Prompts) == 0 && len(p.Competitors) == 0 && p.Analysis == nil
}

// ProviderResult is one provider's contribution to a request. Created with
// status processing when the call starts; immutable once terminal.
type ProviderResult struct {
	ID           string       `json:"id"`
	RequestID    string       `json:"request_id"`
	Provider     string       `json:"provider"`
	Status       ResultStatus `json:"status"`
	RawText      string       `json:"raw_text,omitempty"`
	Payload      *Payload     `json:"payload,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	LatencyMS    int64        `json:"latency_ms"`
	Usage        TokenUsage   `json:"usage"`
	CostUSD      float64      `json:"cost_usd"`
	CreatedAt    time.Time    `json:"created_at"`
}
