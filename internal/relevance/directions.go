package relevance

import (
	"sort"
	"strings"

	"paperlens/internal/core"
)

// ScoreDirections computes a per-direction score for the paper. Each direction
// scores one point per matched keyword in the title+abstract, plus 0.5 when a
// configured category overlaps and the keyword score is already nonzero; the
// sum is multiplied by the direction's weight. Directions that score zero are
// omitted from the result map.
func ScoreDirections(paper core.Paper, directions []core.DirectionConfig) map[string]float64 {
	if len(directions) == 0 {
		return nil
	}

	text := normalizeText(paper.Title + " " + paper.Abstract)

	scores := make(map[string]float64)
	for _, dir := range directions {
		matched := 0.0
		for _, kw := range dir.Match.Keywords {
			needle := normalizeText(kw)
			if needle != "" && strings.Contains(text, needle) {
				matched++
			}
		}
		// Category overlap only sharpens an existing keyword match, it never
		// creates one on its own.
		if matched > 0 && categoryOverlap(paper.Categories, dir.Match.Categories) {
			matched += 0.5
		}
		if matched > 0 {
			weight := dir.Weight
			if weight == 0 {
				weight = 1
			}
			scores[dir.Name] = matched * weight
		}
	}

	if len(scores) == 0 {
		return nil
	}
	return scores
}

func categoryOverlap(have, want []string) bool {
	if len(have) == 0 || len(want) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[strings.ToLower(c)] = true
	}
	for _, c := range want {
		if set[strings.ToLower(c)] {
			return true
		}
	}
	return false
}

// TopDirections returns the top-k direction names sorted by descending score.
// Equal scores break alphabetically so the selection is deterministic.
func TopDirections(scores map[string]float64, k int) []string {
	if len(scores) == 0 || k <= 0 {
		return nil
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > k {
		names = names[:k]
	}
	return names
}

// AggregateDirections sums each direction's score across a paper collection.
// Used for the "top directions today" summary, independent of per-paper rank.
func AggregateDirections(papers []core.Paper) map[string]float64 {
	totals := make(map[string]float64)
	for _, p := range papers {
		for name, score := range p.DirectionScores {
			totals[name] += score
		}
	}
	if len(totals) == 0 {
		return nil
	}
	return totals
}
