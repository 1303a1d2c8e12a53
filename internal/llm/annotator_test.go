package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"paperlens/internal/core"
)

// fakeProvider returns a canned response or error and records the prompt.
type fakeProvider struct {
	text    string
	err     error
	prompts []string
}

func (f *fakeProvider) Generate(ctx context.Context, req Request) (Response, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Text: f.text}, nil
}

func scoringInput() []core.Paper {
	return []core.Paper{
		{ID: "primary:2501.00001v1", Title: "First"},
		{ID: "primary:2501.00002v2", Title: "Second"},
		{ID: "primary:2501.00003v1", Title: "Third"},
	}
}

func TestScorePapers_MatchbackNormalizedIDs(t *testing.T) {
	// The model drops version suffixes, source prefixes, and changes case.
	provider := &fakeProvider{text: `Here you go:
[
  {"id": "2501.00002", "score": 9, "reason": "strong", "summary": "s2"},
  {"id": "PRIMARY:2501.00001V1", "score": 4, "reason": "ok", "summary": "s1"}
]`}

	got, err := ScorePapers(context.Background(), provider, scoringInput(), ScoreOptions{})
	if err != nil {
		t.Fatalf("ScorePapers: %v", err)
	}

	if got[0].ID != "primary:2501.00002v2" || got[0].LLMScore != 9 {
		t.Errorf("first = %s score %v", got[0].ID, got[0].LLMScore)
	}
	if got[1].ID != "primary:2501.00001v1" || got[1].LLMScore != 4 {
		t.Errorf("second = %s score %v", got[1].ID, got[1].LLMScore)
	}
	// Unmatched paper keeps no score and sorts after scored ones.
	if got[2].ID != "primary:2501.00003v1" || got[2].LLMScore != 0 {
		t.Errorf("third = %s score %v", got[2].ID, got[2].LLMScore)
	}
}

func TestScorePapers_NonJSONKeepsOrder(t *testing.T) {
	provider := &fakeProvider{text: "I am sorry, I cannot score these papers."}
	papers := scoringInput()

	got, err := ScorePapers(context.Background(), provider, papers, ScoreOptions{})
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	for i := range papers {
		if got[i].ID != papers[i].ID {
			t.Errorf("order changed at %d: %s vs %s", i, got[i].ID, papers[i].ID)
		}
		if got[i].LLMScore != 0 {
			t.Errorf("paper %s acquired a score", got[i].ID)
		}
	}
}

func TestScorePapers_ProviderErrorKeepsOrder(t *testing.T) {
	provider := &fakeProvider{err: errors.New("quota exceeded")}
	papers := scoringInput()

	got, err := ScorePapers(context.Background(), provider, papers, ScoreOptions{})
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
	if len(got) != len(papers) || got[0].ID != papers[0].ID {
		t.Errorf("input not returned unchanged")
	}
}

func TestScorePapers_ScoreClamped(t *testing.T) {
	provider := &fakeProvider{text: `[{"id":"2501.00001","score":42,"reason":"","summary":""}]`}
	got, err := ScorePapers(context.Background(), provider, scoringInput()[:1], ScoreOptions{})
	if err != nil {
		t.Fatalf("ScorePapers: %v", err)
	}
	if got[0].LLMScore != 10 {
		t.Errorf("score = %v, want clamped to 10", got[0].LLMScore)
	}
}

func TestScorePapers_EmptyInput(t *testing.T) {
	provider := &fakeProvider{}
	got, err := ScorePapers(context.Background(), provider, nil, ScoreOptions{})
	if err != nil || len(got) != 0 {
		t.Errorf("empty input: got (%v, %v)", got, err)
	}
	if len(provider.prompts) != 0 {
		t.Error("provider called for empty input")
	}
}

func TestGenerateDigest_PromptContents(t *testing.T) {
	provider := &fakeProvider{text: "  A fine day in research.  "}
	input := DigestInput{
		Date: "2025-06-15",
		Papers: []core.Paper{
			{ID: "primary:a", Title: "Alpha Paper", Abstract: "About alpha.", LLMSummary: "alpha matters"},
		},
		DirectionTotals:  map[string]float64{"agents": 7.5},
		FullTextExcerpts: map[string]string{"primary:a": "full body text"},
	}

	got, err := GenerateDigest(context.Background(), provider, input, ScoreOptions{})
	if err != nil {
		t.Fatalf("GenerateDigest: %v", err)
	}
	if got != "A fine day in research." {
		t.Errorf("digest = %q", got)
	}

	prompt := provider.prompts[0]
	for _, want := range []string{"2025-06-15", "Alpha Paper", "agents: 7.5", "alpha matters", "full body text"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateDigest_Error(t *testing.T) {
	provider := &fakeProvider{err: errors.New("backend down")}
	_, err := GenerateDigest(context.Background(), provider, DigestInput{Date: "2025-06-15"}, ScoreOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// Three-byte runes: a cut mid-sequence must back off to the previous
	// rune so prompts stay valid UTF-8.
	s := "深層学習の研究"
	got := truncate(s, 4)
	if got != "深..." {
		t.Errorf("truncate(%q, 4) = %q, want %q", s, got, "深...")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Error("truncate must be a no-op when the string fits")
	}
}
