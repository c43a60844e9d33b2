package aggregate

import "strings"

// Fixed word lists for the sentiment heuristic. These are a frozen
// compatibility surface, not a tunable model: scores produced here must
// stay stable across releases because cached analyses are compared
// against fresh ones.
var positiveWords = []string{
	"excellent", "strong", "leader", "leading", "growth", "growing",
	"innovative", "trusted", "popular", "positive", "best", "top",
	"dominant", "successful", "loved", "praised",
}

var negativeWords = []string{
	"weak", "declining", "struggling", "negative", "poor",
	"worst", "losing", "criticized", "complaint", "lawsuit", "scandal",
	"outdated", "failing",
}

// SentimentScore computes the fixed heuristic score for free text:
// occurrences of the positive list over total occurrences of both lists,
// counted as case-insensitive substrings. Returns 0.5 (neutral) when the
// text mentions no sentiment words.
func SentimentScore(text string) float64 {
	lower := strings.ToLower(text)

	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}

	if pos+neg == 0 {
		return 0.5
	}
	return float64(pos) / float64(pos+neg)
}
