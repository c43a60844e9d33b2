package parser

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/model"
)

// Defaults assigned when a provider omits optional competitor fields.
const (
	defaultSentiment  = "neutral"
	defaultVisibility = "unknown"
)

// validateCompetitors field-validates parsed objects, dropping invalid
// items individually rather than failing the whole parse.
func validateCompetitors(items []map[string]any, defaultRelevance int) []model.Competitor {
	var out []model.Competitor
	for _, item := range items {
		comp, ok := validateCompetitor(item, defaultRelevance)
		if !ok {
			zap.L().Debug("parser: dropping competitor failing field validation",
				zap.Any("item", item),
			)
			continue
		}
		out = append(out, comp)
	}
	return out
}

func validateCompetitor(item map[string]any, defaultRelevance int) (model.Competitor, bool) {
	name, _ := item["name"].(string)
	name = strings.TrimSpace(name)

	rawDomain, _ := item["domain"].(string)
	if rawDomain == "" {
		rawDomain, _ = item["website"].(string)
	}

	website := model.EnsureScheme(rawDomain)
	if name == "" || website == "" {
		return model.Competitor{}, false
	}

	comp := model.Competitor{
		Name:       name,
		Domain:     model.NormalizeDomain(website, false),
		Website:    website,
		Mentions:   toInt(item["mentions"], 0),
		Relevance:  toInt(item["relevance"], defaultRelevance),
		Sentiment:  stringOr(item["sentiment"], defaultSentiment),
		Visibility: stringOr(item["visibility"], defaultVisibility),
	}
	return comp, true
}

// validateAnalysis converts a parsed object into AnalysisFields. Returns
// nil when the object carries none of the expected analysis keys.
func validateAnalysis(obj map[string]any) *model.AnalysisFields {
	fields := &model.AnalysisFields{}

	for _, key := range []string{"industries", "industry_mentions", "categories"} {
		if arr, ok := obj[key].([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
					fields.Industries = append(fields.Industries, strings.TrimSpace(s))
				}
			}
			break
		}
	}

	for _, key := range []string{"sources", "source_urls", "citations"} {
		if arr, ok := obj[key].([]any); ok {
			for _, v := range arr {
				s, ok := v.(string)
				if !ok {
					continue
				}
				if u := model.EnsureScheme(s); u != "" {
					fields.SourceURLs = append(fields.SourceURLs, u)
				}
			}
			break
		}
	}

	switch v := obj["sentiment"].(type) {
	case float64:
		score := v
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		fields.Sentiment = &score
	case string:
		fields.SentimentText = v
	}
	if fields.Sentiment == nil && fields.SentimentText == "" {
		for _, key := range []string{"summary", "position", "analysis"} {
			if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
				fields.SentimentText = s
				break
			}
		}
	}

	if len(fields.Industries) == 0 && len(fields.SourceURLs) == 0 &&
		fields.Sentiment == nil && fields.SentimentText == "" {
		return nil
	}
	return fields
}

func toInt(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return def
		}
		return int(i)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return def
		}
		var i int
		for _, c := range s {
			if c < '0' || c > '9' {
				return def
			}
			i = i*10 + int(c-'0')
		}
		return i
	default:
		return def
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}
