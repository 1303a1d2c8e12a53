// Package relevance implements the scoring engine: interest-keyword weighting,
// topical-direction matching and the hotness heuristic.
package relevance

import (
	"regexp"
	"strings"

	"paperlens/internal/core"
)

var whitespace = regexp.MustCompile(`\s+`)

// normalizeText lowercases and collapses whitespace for substring matching.
func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ScoreInterest tests each configured keyword for substring containment in the
// normalized title+abstract. It returns the matched keywords in configured
// order and the weighted sum over matches. Pure function, no side effects.
func ScoreInterest(paper core.Paper, keywords []core.InterestKeyword) ([]string, int) {
	if len(keywords) == 0 {
		return nil, 0
	}

	text := normalizeText(paper.Title + " " + paper.Abstract)

	var hits []string
	total := 0
	for _, kw := range keywords {
		needle := normalizeText(kw.Keyword)
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) {
			hits = append(hits, kw.Keyword)
			total += kw.Weight
		}
	}

	return hits, total
}
