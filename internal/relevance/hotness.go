package relevance

import (
	"fmt"
	"time"

	"paperlens/internal/core"
)

// Hotness is the heuristic "worth surfacing without a keyword hit" result.
type Hotness struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// ScoreHotness estimates how much a paper deserves surfacing independent of
// interest matching. Four additive tiered components, each capped at +3:
// revision count, category breadth, recency against now, community upvotes.
// Total range 0-12. now must be injected so the result is reproducible.
func ScoreHotness(paper core.Paper, now time.Time) Hotness {
	var h Hotness

	switch v := core.ParseVersion(paper.ID); {
	case v >= 4:
		h.add(3, fmt.Sprintf("revised %d times", v-1))
	case v == 3:
		h.add(2, "revised twice")
	case v == 2:
		h.add(1, "revised once")
	}

	switch n := distinctCount(paper.Categories); {
	case n >= 4:
		h.add(3, fmt.Sprintf("spans %d categories", n))
	case n == 3:
		h.add(2, "spans 3 categories")
	case n == 2:
		h.add(1, "spans 2 categories")
	}

	if !paper.Published.IsZero() {
		switch age := now.Sub(paper.Published); {
		case age < 0:
			// Future-dated records score as brand new.
			h.add(3, "published within 24h")
		case age <= 24*time.Hour:
			h.add(3, "published within 24h")
		case age <= 48*time.Hour:
			h.add(2, "published within 48h")
		case age <= 72*time.Hour:
			h.add(1, "published within 72h")
		}
	}

	switch {
	case paper.Upvotes >= 21:
		h.add(3, fmt.Sprintf("%d community upvotes", paper.Upvotes))
	case paper.Upvotes >= 6:
		h.add(2, fmt.Sprintf("%d community upvotes", paper.Upvotes))
	case paper.Upvotes >= 1:
		h.add(1, fmt.Sprintf("%d community upvotes", paper.Upvotes))
	}

	return h
}

func (h *Hotness) add(points float64, reason string) {
	h.Score += points
	h.Reasons = append(h.Reasons, reason)
}

func distinctCount(categories []string) int {
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		seen[c] = true
	}
	return len(seen)
}
