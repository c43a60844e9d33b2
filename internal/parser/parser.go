// Package parser recovers structured suggestions from free-form provider
// completions. Providers return JSON wrapped in prose, markdown fences,
// or truncated envelopes; an ordered fallback chain tries progressively
// more tolerant strategies until one yields at least one valid item.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/model"
)

// snippetLimit bounds how much raw text an UnparsableError retains for
// operator diagnostics.
const snippetLimit = 1000

// maxBracketAttempts bounds the greedy close-bracket scan in step 4.
const maxBracketAttempts = 100

// UnparsableError means the completion text yielded no valid structured
// items after every fallback. The snippet keeps the head of the raw text.
type UnparsableError struct {
	Snippet string
}

func (e *UnparsableError) Error() string {
	return fmt.Sprintf("parser: no structured items recovered (raw: %q)", e.Snippet)
}

func unparsable(raw string) error {
	if len(raw) > snippetLimit {
		raw = raw[:snippetLimit]
	}
	return &UnparsableError{Snippet: raw}
}

// IsUnparsable reports whether err is an UnparsableError.
func IsUnparsable(err error) bool {
	var ue *UnparsableError
	return errors.As(err, &ue)
}

// Parse dispatches to the kind-specific parser and wraps the result in a
// Payload.
func Parse(kind model.OutputKind, raw string, defaultRelevance int) (*model.Payload, error) {
	switch kind {
	case model.KindPrompts:
		prompts, err := ParsePrompts(raw)
		if err != nil {
			return nil, err
		}
		return &model.Payload{Prompts: prompts}, nil
	case model.KindCompetitors:
		comps, err := ParseCompetitors(raw, defaultRelevance)
		if err != nil {
			return nil, err
		}
		return &model.Payload{Competitors: comps}, nil
	case model.KindIndustryAnalysis:
		analysis, err := ParseAnalysis(raw)
		if err != nil {
			return nil, err
		}
		return &model.Payload{Analysis: analysis}, nil
	}
	return nil, fmt.Errorf("parser: unknown output kind %q", kind)
}

// ParsePrompts recovers a list of prompt strings. Accepted shapes: a JSON
// array of strings, an array of objects with a prompt/text field, or an
// object with numbered fields ({"1": "...", "2": "..."}).
func ParsePrompts(raw string) ([]string, error) {
	for _, candidate := range candidates(raw, '[', ']') {
		if prompts := promptsFromText(candidate); len(prompts) > 0 {
			return prompts, nil
		}
	}
	// Numbered-object shape has no brackets; retry with brace candidates.
	for _, candidate := range candidates(raw, '{', '}') {
		if prompts := promptsFromText(candidate); len(prompts) > 0 {
			return prompts, nil
		}
	}
	return nil, unparsable(raw)
}

// promptsFromText attempts to interpret one candidate text as prompts.
func promptsFromText(text string) []string {
	var arr []any
	if err := json.Unmarshal([]byte(text), &arr); err == nil {
		return promptsFromArray(arr)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return promptsFromNumberedObject(obj)
	}
	return nil
}

func promptsFromArray(arr []any) []string {
	var out []string
	for _, item := range arr {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			for _, key := range []string{"prompt", "text", "query"} {
				if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return out
}

// promptsFromNumberedObject handles {"1": "...", "2": "..."} responses,
// emitting values in numeric key order.
func promptsFromNumberedObject(obj map[string]any) []string {
	type numbered struct {
		n int
		s string
	}
	var items []numbered
	for k, v := range obj {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		items = append(items, numbered{n: n, s: strings.TrimSpace(s)})
	}
	if len(items) == 0 {
		return nil
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j-1].n > items[j].n; j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.s
	}
	return out
}

// competitorRequiredKeys are the keys step 5 scans flat objects for.
var competitorRequiredKeys = []string{"name", "domain"}

// ParseCompetitors recovers competitor items. Each parsed object is
// field-validated; invalid items are dropped individually.
func ParseCompetitors(raw string, defaultRelevance int) ([]model.Competitor, error) {
	for _, candidate := range candidates(raw, '[', ']') {
		var arr []map[string]any
		if err := json.Unmarshal([]byte(candidate), &arr); err != nil {
			continue
		}
		if comps := validateCompetitors(arr, defaultRelevance); len(comps) > 0 {
			return comps, nil
		}
	}

	// Step 5: scan for repeated flat objects carrying the required keys.
	if objs := scanObjects(raw, competitorRequiredKeys); len(objs) > 0 {
		if comps := validateCompetitors(objs, defaultRelevance); len(comps) > 0 {
			return comps, nil
		}
	}

	return nil, unparsable(raw)
}

// ParseAnalysis recovers the industry-analysis object for one provider.
func ParseAnalysis(raw string) (*model.AnalysisFields, error) {
	for _, candidate := range candidates(raw, '{', '}') {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		if fields := validateAnalysis(obj); fields != nil {
			return fields, nil
		}
	}
	// A plain-prose answer still carries sentiment signal; treat the whole
	// text as sentiment commentary rather than failing the provider.
	if trimmed := strings.TrimSpace(raw); trimmed != "" && !strings.ContainsAny(trimmed, "{}") {
		return &model.AnalysisFields{SentimentText: trimmed}, nil
	}
	return nil, unparsable(raw)
}

// candidates yields successive texts to attempt, in fallback order:
//  1. the trimmed text with a single surrounding code fence stripped
//  2. the contents of the first fenced ```json block
//  3. the greedy slice from the first open delimiter to a later close
//     delimiter that parses as valid JSON
func candidates(raw string, open, close byte) []string {
	var out []string

	cleaned := stripFence(strings.TrimSpace(raw))
	if cleaned != "" {
		out = append(out, cleaned)
	}

	if block := fencedBlock(raw); block != "" && block != cleaned {
		out = append(out, block)
	}

	if slice := delimiterSlice(raw, open, close); slice != "" {
		out = append(out, slice)
	}

	return out
}

// stripFence removes one leading/trailing markdown code fence pair.
func stripFence(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

// fencedBlock returns the contents of the first ```json ... ``` block
// embedded anywhere in the text, or "".
func fencedBlock(raw string) string {
	start := strings.Index(raw, "```json")
	if start < 0 {
		return ""
	}
	rest := raw[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		// Truncated fence: take everything after the opening marker.
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// delimiterSlice finds the greedy valid-JSON slice from the first open
// delimiter to a later close delimiter, walking close candidates from the
// end backward, bounded by maxBracketAttempts.
func delimiterSlice(raw string, open, close byte) string {
	start := strings.IndexByte(raw, open)
	if start < 0 {
		return ""
	}
	attempts := 0
	for end := strings.LastIndexByte(raw, close); end > start; end = strings.LastIndexByte(raw[:end], close) {
		attempts++
		if attempts > maxBracketAttempts {
			return ""
		}
		slice := raw[start : end+1]
		if json.Valid([]byte(slice)) {
			return slice
		}
	}
	return ""
}

// scanObjects walks the text for balanced {...} spans, parses each
// independently, and keeps those containing every required key. Objects
// that fail to parse are discarded.
func scanObjects(raw string, requiredKeys []string) []map[string]any {
	var out []map[string]any
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(raw[start:i+1]), &obj); err == nil {
					if hasKeys(obj, requiredKeys) {
						out = append(out, obj)
					}
				} else {
					zap.L().Debug("parser: discarding non-parsing object span",
						zap.Int("offset", start),
					)
				}
				start = -1
			}
		}
	}
	return out
}

func hasKeys(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}
