// Package aggregate merges per-provider structured results into one
// canonical output per request. Aggregation is associative and
// commutative over provider results except that prompt order preserves
// first-seen order within a single deterministic pass.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/model"
)

// Options tunes aggregation behavior.
type Options struct {
	// MaxPrompts caps the aggregated prompt list. Zero means the default
	// of 25.
	MaxPrompts int
	// StripPaths extends domain normalization to drop path segments when
	// keying competitors.
	StripPaths bool
}

const defaultMaxPrompts = 25

// Build produces the canonical AggregatedResult for a request from
// whatever provider results are terminal. It always produces a result,
// even when every provider errored; failures are carried for diagnostics.
func Build(req *model.Request, results []model.ProviderResult, existing []model.Competitor, opts Options) *model.AggregatedResult {
	agg := &model.AggregatedResult{
		Fingerprint: req.Fingerprint,
		Kind:        req.Kind,
		RequestID:   req.ID,
		CreatedAt:   time.Now().UTC(),
	}

	for _, r := range results {
		agg.CostUSD += r.CostUSD
		if r.Status == model.ResultError {
			agg.Failures = append(agg.Failures, model.ProviderFailure{
				Provider: r.Provider,
				Message:  r.ErrorMessage,
			})
		}
	}

	switch req.Kind {
	case model.KindPrompts:
		agg.Prompts = Prompts(results, opts.MaxPrompts)
	case model.KindCompetitors:
		agg.Competitors = Competitors(existing, results, opts.StripPaths)
	case model.KindIndustryAnalysis:
		agg.Analysis = Analysis(results)
	}

	zap.L().Info("aggregate: built canonical result",
		zap.String("request", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.Int("prompts", len(agg.Prompts)),
		zap.Int("competitors", len(agg.Competitors)),
		zap.Int("failures", len(agg.Failures)),
		zap.Float64("cost_usd", agg.CostUSD),
	)
	return agg
}

// Prompts unions prompt strings across providers, tagging each with its
// source. Exact-string duplicates are removed preserving first-seen
// order; the list truncates at the cap.
func Prompts(results []model.ProviderResult, maxPrompts int) []model.Prompt {
	if maxPrompts <= 0 {
		maxPrompts = defaultMaxPrompts
	}

	seen := make(map[string]bool)
	var out []model.Prompt
	for _, r := range results {
		if r.Status != model.ResultCompleted || r.Payload == nil {
			continue
		}
		for _, text := range r.Payload.Prompts {
			if seen[text] {
				continue
			}
			seen[text] = true
			out = append(out, model.Prompt{Text: text, Source: r.Provider})
			if len(out) >= maxPrompts {
				return out
			}
		}
	}
	return out
}

// Competitors merges provider competitor lists into the existing set,
// keyed by normalized domain. A new occurrence of a known domain updates
// the stored record in place; genuinely new competitors get ranks
// continuing from max(existing rank) so re-fetches append after prior
// entries instead of renumbering them.
func Competitors(existing []model.Competitor, results []model.ProviderResult, stripPaths bool) []model.Competitor {
	byDomain := make(map[string]int, len(existing))
	out := make([]model.Competitor, len(existing))
	copy(out, existing)

	maxRank := 0
	for i, c := range out {
		byDomain[model.NormalizeDomain(c.Domain, stripPaths)] = i
		if c.Rank > maxRank {
			maxRank = c.Rank
		}
	}

	nextRank := maxRank + 1
	for _, r := range results {
		if r.Status != model.ResultCompleted || r.Payload == nil {
			continue
		}
		for _, c := range r.Payload.Competitors {
			key := model.NormalizeDomain(c.Domain, stripPaths)
			if key == "" {
				continue
			}
			if idx, ok := byDomain[key]; ok {
				updateCompetitor(&out[idx], c, r.Provider)
				continue
			}
			c.Rank = nextRank
			nextRank++
			c.Sources = []string{r.Provider}
			byDomain[key] = len(out)
			out = append(out, c)
		}
	}
	return out
}

// updateCompetitor applies a re-observed competitor onto the stored
// record: name and mention estimate follow the newest observation, rank
// and placeholders stay.
func updateCompetitor(stored *model.Competitor, seen model.Competitor, provider string) {
	if seen.Name != "" {
		stored.Name = seen.Name
	}
	if seen.Mentions != 0 {
		stored.Mentions = seen.Mentions
	}
	if seen.Relevance != 0 {
		stored.Relevance = seen.Relevance
	}
	for _, s := range stored.Sources {
		if s == provider {
			return
		}
	}
	stored.Sources = append(stored.Sources, provider)
}

// Analysis merges per-provider analysis fields: set-union for industries
// and source URLs (exact-string dedup), arithmetic mean of the sentiment
// score across providers that succeeded. Free-text sentiment is scored
// with the fixed heuristic before averaging.
func Analysis(results []model.ProviderResult) *model.IndustryAnalysis {
	merged := &model.IndustryAnalysis{}

	industrySet := make(map[string]bool)
	urlSet := make(map[string]bool)
	var scoreSum float64
	var scored int

	for _, r := range results {
		if r.Status != model.ResultCompleted || r.Payload == nil || r.Payload.Analysis == nil {
			continue
		}
		fields := r.Payload.Analysis
		merged.Providers = append(merged.Providers, r.Provider)

		for _, ind := range fields.Industries {
			key := strings.ToLower(ind)
			if !industrySet[key] {
				industrySet[key] = true
				merged.Industries = append(merged.Industries, ind)
			}
		}
		for _, u := range fields.SourceURLs {
			if !urlSet[u] {
				urlSet[u] = true
				merged.SourceURLs = append(merged.SourceURLs, u)
			}
		}

		if fields.Sentiment != nil {
			scoreSum += *fields.Sentiment
			scored++
		} else if fields.SentimentText != "" {
			scoreSum += SentimentScore(fields.SentimentText)
			scored++
		}
	}

	if len(merged.Providers) == 0 {
		return nil
	}

	if scored > 0 {
		merged.Sentiment = scoreSum / float64(scored)
	} else {
		merged.Sentiment = 0.5
	}

	// Stable output regardless of provider arrival order.
	sort.Strings(merged.Industries)
	sort.Strings(merged.SourceURLs)
	sort.Strings(merged.Providers)
	return merged
}
