package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"paperlens/internal/core"
	"paperlens/internal/docstore"
	"paperlens/internal/state"
)

// Rollup aggregates a range of daily snapshots into one summary document,
// for weekly or monthly review.
type Rollup struct {
	From      string
	To        string
	Days      int // Days with a snapshot in the range
	ErrorDays int // Days whose snapshot recorded a fetch error

	TopPapers       []core.Paper   // Highest rank score across the window, deduplicated
	DirectionTotals map[string]float64
	Recurring       []core.Paper // Papers seen on more than one day
}

// RollupGenerator builds rollups from persisted snapshots.
type RollupGenerator struct {
	snapshots *state.SnapshotStore
	docs      docstore.Store
	topN      int
}

// NewRollupGenerator creates a generator. topN caps the papers listed in the
// rollup; zero or negative falls back to 10.
func NewRollupGenerator(snapshots *state.SnapshotStore, docs docstore.Store, topN int) *RollupGenerator {
	if topN <= 0 {
		topN = 10
	}
	return &RollupGenerator{snapshots: snapshots, docs: docs, topN: topN}
}

// Generate aggregates snapshots in [from, to] inclusive. A paper appearing
// on several days keeps its best rank score; directions accumulate across
// every day.
func (g *RollupGenerator) Generate(from, to string) (*Rollup, error) {
	snaps, err := g.snapshots.ReadRange(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no snapshots between %s and %s", from, to)
	}

	r := &Rollup{From: from, To: to, Days: len(snaps), DirectionTotals: make(map[string]float64)}

	best := make(map[string]core.Paper)
	daysSeen := make(map[string]int)
	for _, snap := range snaps {
		if snap.Error != "" {
			r.ErrorDays++
		}
		for _, p := range snap.Papers {
			norm := core.NormalizeID(p.ID)
			daysSeen[norm]++
			if prev, ok := best[norm]; !ok || p.RankScore > prev.RankScore {
				best[norm] = p
			}
			for dir, score := range p.DirectionScores {
				r.DirectionTotals[dir] += score
			}
		}
	}

	for norm, p := range best {
		r.TopPapers = append(r.TopPapers, p)
		if daysSeen[norm] > 1 {
			p.Streak = daysSeen[norm]
			r.Recurring = append(r.Recurring, p)
		}
	}
	sort.Slice(r.TopPapers, func(i, j int) bool {
		if r.TopPapers[i].RankScore != r.TopPapers[j].RankScore {
			return r.TopPapers[i].RankScore > r.TopPapers[j].RankScore
		}
		return r.TopPapers[i].ID < r.TopPapers[j].ID
	})
	sort.Slice(r.Recurring, func(i, j int) bool {
		if r.Recurring[i].Streak != r.Recurring[j].Streak {
			return r.Recurring[i].Streak > r.Recurring[j].Streak
		}
		return r.Recurring[i].ID < r.Recurring[j].ID
	})
	if len(r.TopPapers) > g.topN {
		r.TopPapers = r.TopPapers[:g.topN]
	}
	if len(r.Recurring) > g.topN {
		r.Recurring = r.Recurring[:g.topN]
	}
	return r, nil
}

// WriteMarkdown renders the rollup and persists it under the given folder,
// returning the note path.
func (g *RollupGenerator) WriteMarkdown(r *Rollup, folder string) (string, error) {
	if folder == "" {
		folder = "rollups"
	}
	path := fmt.Sprintf("%s/%s_%s.md", folder, r.From, r.To)
	if err := g.docs.WriteNote(path, renderRollup(r)); err != nil {
		return "", fmt.Errorf("failed to persist rollup: %w", err)
	}
	return path, nil
}

func renderRollup(r *Rollup) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Paper rollup: %s to %s\n\n", r.From, r.To)
	fmt.Fprintf(&b, "%d days with data", r.Days)
	if r.ErrorDays > 0 {
		fmt.Fprintf(&b, ", %d with fetch errors", r.ErrorDays)
	}
	b.WriteString(".\n")

	if len(r.DirectionTotals) > 0 {
		b.WriteString("\n## Direction momentum\n\n")
		dirs := make([]string, 0, len(r.DirectionTotals))
		for dir := range r.DirectionTotals {
			dirs = append(dirs, dir)
		}
		sort.Slice(dirs, func(i, j int) bool {
			if r.DirectionTotals[dirs[i]] != r.DirectionTotals[dirs[j]] {
				return r.DirectionTotals[dirs[i]] > r.DirectionTotals[dirs[j]]
			}
			return dirs[i] < dirs[j]
		})
		for _, dir := range dirs {
			fmt.Fprintf(&b, "- **%s**: %.1f\n", dir, r.DirectionTotals[dir])
		}
	}

	if len(r.TopPapers) > 0 {
		fmt.Fprintf(&b, "\n## Top papers (%d)\n\n", len(r.TopPapers))
		for i, p := range r.TopPapers {
			fmt.Fprintf(&b, "%d. **%s** (%.1f) `%s`\n", i+1, p.Title, p.RankScore, p.ID)
		}
	}

	if len(r.Recurring) > 0 {
		b.WriteString("\n## Recurring across days\n\n")
		for _, p := range r.Recurring {
			fmt.Fprintf(&b, "- **%s**: %d days\n", p.Title, p.Streak)
		}
	}

	fmt.Fprintf(&b, "\n---\n_Generated %s_\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}
