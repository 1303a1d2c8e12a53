package core

import "time"

// Source identifies which feed a paper came from.
type Source string

const (
	SourcePrimary   Source = "primary"   // arXiv-style preprint API
	SourceCommunity Source = "community" // community daily-picks feed
	SourceCustom    Source = "custom"    // user-supplied custom feed
	SourceRSS       Source = "rss"       // generic RSS/Atom feed
)

// Links holds the optional URLs attached to a paper.
type Links struct {
	HTML      string `json:"html,omitempty"`      // Abstract/landing page
	PDF       string `json:"pdf,omitempty"`       // Direct PDF link
	Community string `json:"community,omitempty"` // Community-feed discussion page
	Local     string `json:"local,omitempty"`     // Locally downloaded copy
}

// Paper is the central entity flowing through the pipeline. Source adapters
// create it; the ranker and LLM annotator fill in the computed fields in place
// during a single run.
type Paper struct {
	ID         string    `json:"id"`         // Source-qualified, version-suffixed (e.g. "primary:2501.12345v2")
	Title      string    `json:"title"`      // Paper title
	Authors    []string  `json:"authors"`    // Ordered author list
	Abstract   string    `json:"abstract"`   // Abstract text
	Categories []string  `json:"categories"` // Topical tags (distinct)
	Published  time.Time `json:"published"`  // First publication time (UTC)
	Updated    time.Time `json:"updated"`    // Last revision time (UTC)
	Links      Links     `json:"links"`      // Optional URLs
	Source     Source    `json:"source"`     // Which feed produced this record

	// Computed during ranking / annotation.
	InterestHits    []string           `json:"interest_hits,omitempty"`    // Matched interest keywords, config order
	DirectionScores map[string]float64 `json:"direction_scores,omitempty"` // Sparse: zero-score directions omitted
	TopDirections   []string           `json:"top_directions,omitempty"`   // Top-k direction names, descending score
	RankScore       float64            `json:"rank_score"`                 // Composite ordering score
	LLMScore        float64            `json:"llm_score,omitempty"`        // 1-10, only when LLM annotation ran
	LLMScoreReason  string             `json:"llm_score_reason,omitempty"` // LLM's one-line justification
	LLMSummary      string             `json:"llm_summary,omitempty"`      // LLM-generated summary
	HotnessScore    float64            `json:"hotness_score,omitempty"`    // Heuristic 0-12, trending section only
	HotnessReasons  []string           `json:"hotness_reasons,omitempty"`  // Human-readable tier explanations

	// Community-feed signals.
	Upvotes int `json:"upvotes,omitempty"` // Community upvote count
	Streak  int `json:"streak,omitempty"`  // Cross-day reappearance count
}

// InterestKeyword is one weighted interest signal. Configuration, never
// mutated at runtime.
type InterestKeyword struct {
	Keyword string `json:"keyword" mapstructure:"keyword"`
	Weight  int    `json:"weight" mapstructure:"weight"` // 1-5
}

// DirectionMatch defines what a direction matches on.
type DirectionMatch struct {
	Keywords   []string `json:"keywords" mapstructure:"keywords"`
	Categories []string `json:"categories,omitempty" mapstructure:"categories"`
}

// DirectionConfig is a named topical cluster with an importance weight.
type DirectionConfig struct {
	Name   string         `json:"name" mapstructure:"name"`
	Weight float64        `json:"weight" mapstructure:"weight"`
	Match  DirectionMatch `json:"match" mapstructure:"match"`
}

// TrackEntry records cross-day reappearances of a community-feed item.
// Invariant: Count >= 1 and FirstSeen <= LastSeen.
type TrackEntry struct {
	Title     string `json:"title"`
	FirstSeen string `json:"first_seen"` // YYYY-MM-DD
	LastSeen  string `json:"last_seen"`  // YYYY-MM-DD
	Count     int    `json:"count"`      // Distinct calendar days seen
}

// RunError captures the last failure recorded by the orchestrator.
type RunError struct {
	Time    time.Time `json:"time"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// RunState is the single mutable record the scheduler reads to decide whether
// a daily run is due.
type RunState struct {
	LastDailyRun time.Time `json:"last_daily_run"`
	LastError    *RunError `json:"last_error,omitempty"`
}

// DailySnapshot is the immutable, date-keyed record of one run's full ranked
// output. Re-running a date overwrites it wholesale, never merges.
type DailySnapshot struct {
	Date      string    `json:"date"` // YYYY-MM-DD
	Papers    []Paper   `json:"papers"`
	FetchedAt time.Time `json:"fetched_at"`
	Error     string    `json:"error,omitempty"` // Top-level fetch error, if any
}
