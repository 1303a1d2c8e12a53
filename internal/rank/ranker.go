// Package rank merges per-paper signals into one deterministic ordering.
package rank

import (
	"math"
	"sort"
	"time"

	"paperlens/internal/core"
	"paperlens/internal/relevance"
)

// tieEpsilon is the score difference below which two papers are considered
// tied and the recency tie-break applies.
const tieEpsilon = 0.001

// Options configures ranking.
type Options struct {
	Directions    []core.DirectionConfig // Empty disables the direction term
	DirectionTopK int
}

// Papers scores every paper against the interest keywords (and directions,
// when configured) and returns a new slice sorted by descending composite
// score. The composite is:
//
//	log(1+upvotes)*10 + totalDirectionScore*2 + weightedInterestScore
//
// The log-scaled upvote term keeps very high community counts from drowning
// out topical relevance while still rewarding any nonzero community signal
// over none. Ties (score difference < 0.001) go to the most recently touched
// paper, then to the lower ID. Input order and contents are not modified.
func Papers(papers []core.Paper, keywords []core.InterestKeyword, opts Options) []core.Paper {
	ranked := make([]core.Paper, len(papers))
	copy(ranked, papers)

	for i := range ranked {
		p := &ranked[i]

		hits, interestScore := relevance.ScoreInterest(*p, keywords)
		p.InterestHits = hits

		directionTotal := 0.0
		if len(opts.Directions) > 0 {
			p.DirectionScores = relevance.ScoreDirections(*p, opts.Directions)
			p.TopDirections = relevance.TopDirections(p.DirectionScores, opts.DirectionTopK)
			for _, s := range p.DirectionScores {
				directionTotal += s
			}
		}

		p.RankScore = math.Log(1+float64(p.Upvotes))*10 +
			directionTotal*2 +
			float64(interestScore)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.RankScore-b.RankScore) >= tieEpsilon {
			return a.RankScore > b.RankScore
		}
		at, bt := touchedAt(a), touchedAt(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID < b.ID
	})

	return ranked
}

// touchedAt is the tie-break timestamp: last update, falling back to
// publication.
func touchedAt(p core.Paper) time.Time {
	if !p.Updated.IsZero() {
		return p.Updated
	}
	return p.Published
}
