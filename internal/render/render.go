// Package render turns a finished pipeline run into the digest document.
// Rendering is pure and total: missing optional fields default away, and any
// upstream failure becomes a visible error banner rather than a silently
// thinner digest.
package render

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"paperlens/internal/core"
)

// Input carries everything a digest render needs. Every field except Date is
// optional.
type Input struct {
	Date            string
	Papers          []core.Paper // Ranked
	DigestText      string       // LLM narrative, may be empty
	Trending        []core.Paper // Hotness-surfaced extras, may be empty
	DirectionTotals map[string]float64
	ErrorBanner     string // Stage-qualified message when an upstream stage failed
}

// Digest renders the daily digest document as markdown.
func Digest(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Paper Digest — %s\n\n", in.Date)

	if in.ErrorBanner != "" {
		fmt.Fprintf(&b, "> ⚠️ %s\n\n", in.ErrorBanner)
	}

	if in.DigestText != "" {
		b.WriteString(in.DigestText)
		b.WriteString("\n\n---\n\n")
	}

	if totals := topDirectionLines(in.DirectionTotals, 5); len(totals) > 0 {
		b.WriteString("## Directions today\n\n")
		for _, line := range totals {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	if len(in.Papers) == 0 {
		b.WriteString("No papers ranked today.\n")
	} else {
		fmt.Fprintf(&b, "## Ranked papers (%d)\n\n", len(in.Papers))
		for i, p := range in.Papers {
			writePaper(&b, i+1, p)
		}
	}

	if len(in.Trending) > 0 {
		b.WriteString("## Trending without a keyword hit\n\n")
		for _, p := range in.Trending {
			fmt.Fprintf(&b, "- **%s**", orUntitled(p.Title))
			if p.HotnessScore > 0 {
				fmt.Fprintf(&b, " (hotness %.0f: %s)", p.HotnessScore, strings.Join(p.HotnessReasons, "; "))
			}
			if link := bestLink(p); link != "" {
				fmt.Fprintf(&b, " — %s", link)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writePaper(b *strings.Builder, n int, p core.Paper) {
	fmt.Fprintf(b, "### %d. %s\n\n", n, orUntitled(p.Title))

	var meta []string
	if p.LLMScore > 0 {
		meta = append(meta, fmt.Sprintf("LLM %.0f/10", p.LLMScore))
	}
	if len(p.TopDirections) > 0 {
		meta = append(meta, "directions: "+strings.Join(p.TopDirections, ", "))
	}
	if len(p.InterestHits) > 0 {
		meta = append(meta, "interests: "+strings.Join(p.InterestHits, ", "))
	}
	if p.Upvotes > 0 {
		meta = append(meta, fmt.Sprintf("%d upvotes", p.Upvotes))
	}
	if p.Streak > 1 {
		meta = append(meta, fmt.Sprintf("day %d on the community feed", p.Streak))
	}
	if len(meta) > 0 {
		fmt.Fprintf(b, "*%s*\n\n", strings.Join(meta, " · "))
	}

	switch {
	case p.LLMSummary != "":
		b.WriteString(p.LLMSummary)
		b.WriteString("\n\n")
	case p.Abstract != "":
		b.WriteString(excerpt(p.Abstract, 400))
		b.WriteString("\n\n")
	}
	if p.LLMScoreReason != "" {
		fmt.Fprintf(b, "> %s\n\n", p.LLMScoreReason)
	}
	if link := bestLink(p); link != "" {
		fmt.Fprintf(b, "[%s](%s)\n\n", p.ID, link)
	}
}

func topDirectionLines(totals map[string]float64, limit int) []string {
	if len(totals) == 0 {
		return nil
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if totals[names[i]] != totals[names[j]] {
			return totals[names[i]] > totals[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = fmt.Sprintf("- %s: %.1f\n", name, totals[name])
	}
	return lines
}

func bestLink(p core.Paper) string {
	switch {
	case p.Links.HTML != "":
		return p.Links.HTML
	case p.Links.PDF != "":
		return p.Links.PDF
	case p.Links.Community != "":
		return p.Links.Community
	default:
		return ""
	}
}

func orUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the cut never splits a multi-byte
	// character.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
