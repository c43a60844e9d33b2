package orchestrator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/brandforge/suggest-engine/internal/model"
)

// buildPrompt renders the instruction sent to every provider for a
// request. All providers receive the same prompt; differences in their
// answers are reconciled by aggregation.
func buildPrompt(req *model.Request, promptCount int, exclusions []string) string {
	var b strings.Builder

	brand := req.Target.Name
	if brand == "" {
		brand = req.Target.URL
	}

	switch req.Kind {
	case model.KindPrompts:
		fmt.Fprintf(&b, "Suggest %d search prompts that a potential customer of %s", promptCount, brand)
		if req.Target.URL != "" {
			fmt.Fprintf(&b, " (%s)", req.Target.URL)
		}
		b.WriteString(" might type into an AI assistant when researching this product category.")
		if req.Target.Description != "" {
			fmt.Fprintf(&b, " The brand describes itself as: %s.", req.Target.Description)
		}
		writeRegion(&b, req.Country)
		b.WriteString(" Respond with a JSON array of strings, one prompt per element, and nothing else.")

	case model.KindCompetitors:
		fmt.Fprintf(&b, "List the main competitors of %s", brand)
		if req.Target.URL != "" {
			fmt.Fprintf(&b, " (%s)", req.Target.URL)
		}
		b.WriteString(".")
		if req.Target.Description != "" {
			fmt.Fprintf(&b, " The brand describes itself as: %s.", req.Target.Description)
		}
		writeRegion(&b, req.Country)
		if len(exclusions) > 0 {
			fmt.Fprintf(&b, " Do not include these domains: %s.", strings.Join(exclusions, ", "))
		}
		b.WriteString(` Respond with a JSON array of objects, each with "name", "domain", "mentions" (integer), and "relevance" (0-100 integer), and nothing else.`)

	case model.KindIndustryAnalysis:
		fmt.Fprintf(&b, "Analyze the market position of %s", brand)
		if req.Target.URL != "" {
			fmt.Fprintf(&b, " (%s)", req.Target.URL)
		}
		b.WriteString(".")
		if req.Target.Description != "" {
			fmt.Fprintf(&b, " The brand describes itself as: %s.", req.Target.Description)
		}
		writeRegion(&b, req.Country)
		b.WriteString(` Respond with a JSON object with "industries" (array of strings), "source_urls" (array of strings), and "sentiment" (number between 0 and 1), and nothing else.`)
	}

	return b.String()
}

func writeRegion(b *strings.Builder, country string) {
	if name := regionName(country); name != "" {
		fmt.Fprintf(b, " Focus on the %s market.", name)
	}
}

// regionName resolves an ISO country code to its English display name,
// falling back to the upper-cased code when it does not parse.
func regionName(country string) string {
	if country == "" {
		return ""
	}
	reg, err := language.ParseRegion(country)
	if err != nil {
		return strings.ToUpper(country)
	}
	if name := display.English.Regions().Name(reg); name != "" {
		return name
	}
	return reg.String()
}

// mergeExclusions combines caller-supplied domains with the brand's
// stored competitor roster so regeneration asks for net-new entries.
func mergeExclusions(callerSupplied []string, stored []model.Competitor) []string {
	seen := make(map[string]bool, len(callerSupplied)+len(stored))
	var out []string
	add := func(domain string) {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	for _, d := range callerSupplied {
		add(d)
	}
	for _, c := range stored {
		add(c.Domain)
	}
	return out
}
