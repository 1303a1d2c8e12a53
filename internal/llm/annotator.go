package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"paperlens/internal/core"
	"paperlens/internal/logger"
)

const scoreSystemPrompt = `You are scoring research papers for a personal daily digest.
Respond with a strict JSON array only, no prose: [{"id": "...", "score": 1-10, "reason": "...", "summary": "..."}].
Score each paper for novelty and relevance to the reader's stated interests. Keep reason to one sentence and summary to two or three.`

// scoreResult is one entry of the provider's scoring reply.
type scoreResult struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
	Summary string  `json:"summary"`
}

// ScoreOptions configures the batch scoring call.
type ScoreOptions struct {
	Temperature float32
	MaxTokens   int32
}

// ScorePapers asks the provider to score the ranked set and returns a new
// slice with LLM fields attached, scored papers first (descending LLM score,
// stable), unscored after in their existing order. Any provider or parse
// failure returns the input unchanged along with the error; the caller logs
// and keeps the keyword/direction ranking as truth.
func ScorePapers(ctx context.Context, provider Provider, papers []core.Paper, opts ScoreOptions) ([]core.Paper, error) {
	if len(papers) == 0 {
		return papers, nil
	}

	resp, err := provider.Generate(ctx, Request{
		System:      scoreSystemPrompt,
		Prompt:      buildScorePrompt(papers),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return papers, fmt.Errorf("scoring call failed: %w", err)
	}

	raw, ok := ExtractJSONArray(resp.Text)
	if !ok {
		return papers, fmt.Errorf("no JSON array in scoring response")
	}
	var results []scoreResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return papers, fmt.Errorf("failed to decode scoring response: %w", err)
	}

	// The model echoes IDs imprecisely (case drift, dropped version suffix,
	// dropped source prefix), so matchback runs on normalized IDs.
	byNorm := make(map[string]scoreResult, len(results))
	for _, r := range results {
		if r.ID != "" {
			byNorm[core.NormalizeID(r.ID)] = r
		}
	}

	annotated := make([]core.Paper, len(papers))
	copy(annotated, papers)
	matched := 0
	for i := range annotated {
		r, ok := byNorm[core.NormalizeID(annotated[i].ID)]
		if !ok {
			continue
		}
		annotated[i].LLMScore = clampScore(r.Score)
		annotated[i].LLMScoreReason = strings.TrimSpace(r.Reason)
		annotated[i].LLMSummary = strings.TrimSpace(r.Summary)
		matched++
	}

	if matched == 0 {
		return papers, fmt.Errorf("no scoring results matched any paper ID")
	}
	if matched < len(annotated) {
		logger.Debug("some papers unmatched by LLM scoring", "matched", matched, "total", len(annotated))
	}

	sort.SliceStable(annotated, func(i, j int) bool {
		a, b := annotated[i], annotated[j]
		if (a.LLMScore > 0) != (b.LLMScore > 0) {
			return a.LLMScore > 0
		}
		return a.LLMScore > b.LLMScore
	})

	return annotated, nil
}

func buildScorePrompt(papers []core.Paper) string {
	var b strings.Builder
	b.WriteString("Papers to score:\n\n")
	for _, p := range papers {
		fmt.Fprintf(&b, "id: %s\ntitle: %s\n", p.ID, p.Title)
		if excerpt := truncate(p.Abstract, 600); excerpt != "" {
			fmt.Fprintf(&b, "abstract: %s\n", excerpt)
		}
		if len(p.TopDirections) > 0 {
			fmt.Fprintf(&b, "directions: %s\n", strings.Join(p.TopDirections, ", "))
		}
		if len(p.InterestHits) > 0 {
			fmt.Fprintf(&b, "matched interests: %s\n", strings.Join(p.InterestHits, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("Return the JSON array now.")
	return b.String()
}

func clampScore(score float64) float64 {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

func truncate(s string, max int) string {
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

// DigestInput carries everything the narrative call needs.
type DigestInput struct {
	Date             string
	Papers           []core.Paper       // Ranked, already truncated to top-N by the caller
	DirectionTotals  map[string]float64 // Aggregate direction scores for the day
	FullTextExcerpts map[string]string  // Paper ID -> excerpt, optional
}

// GenerateDigest produces the free-text digest narrative. Failure is the
// caller's to surface; an explicit error message belongs in the rendered
// output rather than a silently missing section.
func GenerateDigest(ctx context.Context, provider Provider, input DigestInput, opts ScoreOptions) (string, error) {
	resp, err := provider.Generate(ctx, Request{
		Prompt:      buildDigestPrompt(input),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("digest call failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func buildDigestPrompt(input DigestInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short narrative digest of today's (%s) research papers for a single expert reader.\n\n", input.Date)

	if len(input.DirectionTotals) > 0 {
		b.WriteString("Today's topical directions by total score:\n")
		names := make([]string, 0, len(input.DirectionTotals))
		for name := range input.DirectionTotals {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if input.DirectionTotals[names[i]] != input.DirectionTotals[names[j]] {
				return input.DirectionTotals[names[i]] > input.DirectionTotals[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %.1f\n", name, input.DirectionTotals[name])
		}
		b.WriteString("\n")
	}

	b.WriteString("Top papers:\n\n")
	for i, p := range input.Papers {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Title)
		if excerpt := truncate(p.Abstract, 400); excerpt != "" {
			fmt.Fprintf(&b, "    %s\n", excerpt)
		}
		if p.LLMSummary != "" {
			fmt.Fprintf(&b, "    Summary: %s\n", p.LLMSummary)
		}
		if full, ok := input.FullTextExcerpts[p.ID]; ok && full != "" {
			fmt.Fprintf(&b, "    Full-text excerpt: %s\n", truncate(full, 1200))
		}
		b.WriteString("\n")
	}

	b.WriteString("Structure:\n")
	b.WriteString("1. One-paragraph overview of the day's theme.\n")
	b.WriteString("2. Three to five bullet highlights, each naming the paper by [number] and why it matters.\n")
	b.WriteString("3. One closing sentence on what to read first.\n")
	b.WriteString("Keep the whole digest under 250 words. Write prose, no headers.\n")
	return b.String()
}
