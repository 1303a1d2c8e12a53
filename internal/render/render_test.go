package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"paperlens/internal/core"
)

func TestDigest_EmptyIsNotAnError(t *testing.T) {
	out := Digest(Input{Date: "2025-06-15"})

	if !strings.Contains(out, "Paper Digest — 2025-06-15") {
		t.Errorf("missing title: %q", out)
	}
	if !strings.Contains(out, "No papers ranked today.") {
		t.Errorf("missing empty notice: %q", out)
	}
	if strings.Contains(out, "⚠️") {
		t.Errorf("empty run must not render an error banner: %q", out)
	}
}

func TestDigest_ErrorBanner(t *testing.T) {
	out := Digest(Input{
		Date:        "2025-06-15",
		ErrorBanner: "FETCH_PRIMARY failed: rate limited by upstream",
	})
	if !strings.Contains(out, "⚠️ FETCH_PRIMARY failed: rate limited by upstream") {
		t.Errorf("banner missing: %q", out)
	}
}

func TestDigest_FullSections(t *testing.T) {
	in := Input{
		Date:       "2025-06-15",
		DigestText: "A narrative of the day.",
		Papers: []core.Paper{
			{
				ID:             "primary:2501.00001v1",
				Title:          "Alpha",
				Abstract:       "Alpha abstract.",
				InterestHits:   []string{"transformer"},
				TopDirections:  []string{"agents"},
				LLMScore:       8,
				LLMScoreReason: "promising",
				LLMSummary:     "Alpha summarized.",
				Upvotes:        12,
				Streak:         2,
				Links:          core.Links{HTML: "https://example.org/abs/2501.00001"},
			},
			{ID: "primary:2501.00002v1"}, // all optional fields absent
		},
		Trending: []core.Paper{
			{
				Title:          "Hot Outsider",
				HotnessScore:   7,
				HotnessReasons: []string{"21 community upvotes", "published within 24h"},
			},
		},
		DirectionTotals: map[string]float64{"agents": 9.5, "efficiency": 1},
	}

	out := Digest(in)

	for _, want := range []string{
		"A narrative of the day.",
		"## Directions today",
		"- agents: 9.5",
		"## Ranked papers (2)",
		"### 1. Alpha",
		"LLM 8/10",
		"directions: agents",
		"interests: transformer",
		"12 upvotes",
		"day 2 on the community feed",
		"Alpha summarized.",
		"> promising",
		"### 2. (untitled)",
		"## Trending without a keyword hit",
		"**Hot Outsider** (hotness 7: 21 community upvotes; published within 24h)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n---\n%s", want, out)
		}
	}
}

func TestDigest_NeverPanicsOnMissingFields(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("render panicked: %v", r)
		}
	}()
	_ = Digest(Input{})
	_ = Digest(Input{Papers: []core.Paper{{}}, Trending: []core.Paper{{}}})
}

func TestExcerpt_RuneBoundary(t *testing.T) {
	s := "モデル圧縮に関する研究"
	got := excerpt(s, 7)
	if got != "モデ..." {
		t.Errorf("excerpt(%q, 7) = %q, want %q", s, got, "モデ...")
	}
	if !utf8.ValidString(got) {
		t.Errorf("excerpt produced invalid UTF-8: %q", got)
	}
}
