// Package pipeline orchestrates the daily digest run: fetch, merge, dedup,
// rank, LLM annotation, render, persist. Stages execute strictly
// sequentially; each tolerates upstream failure so a run always produces a
// visible artifact, even when every fetch fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"paperlens/internal/core"
	"paperlens/internal/docstore"
	"paperlens/internal/fulltext"
	"paperlens/internal/llm"
	"paperlens/internal/logger"
	"paperlens/internal/rank"
	"paperlens/internal/relevance"
	"paperlens/internal/render"
	"paperlens/internal/sources"
	"paperlens/internal/state"

	"github.com/google/uuid"
)

// rateLimitBackoff is the capped retry schedule for primary-feed rate
// limits.
var rateLimitBackoff = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

// Config holds the per-run configuration, loaded once at pipeline start and
// never mutated mid-run.
type Config struct {
	Interests         []core.InterestKeyword
	Directions        []core.DirectionConfig
	DirectionsEnabled bool
	DirectionTopK     int

	Categories []string
	Keywords   []string
	SortBy     string
	MaxResults int

	CommunityEnabled      bool
	CommunityFoldIn       bool
	CommunityFilterRepeat bool

	LLMScoreTopN   int
	LLMDigest      bool
	LLMTemperature float32
	LLMMaxTokens   int32

	TrendingEnabled bool
	TrendingMin     float64
	TrendingMax     int

	FullTextEnabled bool
	FullTextTopN    int
	FullTextChars   int

	DigestFolder string
	OpsLogNote   string
}

// Orchestrator wires the collaborators for one pipeline instance. Optional
// collaborators (provider, fullText, secondary, extras) may be nil; the
// corresponding stages skip.
type Orchestrator struct {
	primary   sources.Adapter
	secondary sources.Adapter
	extras    []sources.Adapter

	provider llm.Provider
	fullText fulltext.Fetcher

	dedup     *state.DedupStore
	tracking  *state.TrackingStore
	runState  *state.RunStateStore
	snapshots *state.SnapshotStore
	docs      docstore.Store

	cfg      Config
	observer Observer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Primary   sources.Adapter
	Secondary sources.Adapter
	Extras    []sources.Adapter
	Provider  llm.Provider
	FullText  fulltext.Fetcher
	Dedup     *state.DedupStore
	Tracking  *state.TrackingStore
	RunState  *state.RunStateStore
	Snapshots *state.SnapshotStore
	Docs      docstore.Store
	Observer  Observer
	Now       func() time.Time
}

// New creates an orchestrator. Deps.Now defaults to time.Now; tests inject a
// fixed clock.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.DigestFolder == "" {
		cfg.DigestFolder = "digests"
	}
	if cfg.OpsLogNote == "" {
		cfg.OpsLogNote = "log/pipeline.md"
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		primary:   deps.Primary,
		secondary: deps.Secondary,
		extras:    deps.Extras,
		provider:  deps.Provider,
		fullText:  deps.FullText,
		dedup:     deps.Dedup,
		tracking:  deps.Tracking,
		runState:  deps.RunState,
		snapshots: deps.Snapshots,
		docs:      deps.Docs,
		cfg:       cfg,
		observer:  deps.Observer,
		now:       now,
		sleep:     sleepCtx,
	}
}

// RunOptions selects the target date and run mode.
type RunOptions struct {
	// Date is the target day, YYYY-MM-DD. Empty means today (UTC).
	Date string
	// Historical pins the fetch window to Date's full 24h UTC span and
	// suppresses UPDATE_DEDUP and UPDATE_STATE, so backfills cannot corrupt
	// the scheduler's last-run timestamp.
	Historical bool
	// SkipDedup bypasses the dedup filter, used when re-running a date whose
	// items were already marked seen.
	SkipDedup bool
}

// Result is the outcome of one run.
type Result struct {
	RunID        string
	Date         string
	Papers       []core.Paper // Final ranked order, as rendered
	Trending     []core.Paper
	DigestText   string
	Document     string // Rendered digest markdown
	DocumentPath string
	FetchError   string // Primary fetch failure, empty on success
}

// Run executes the full pipeline for one day. The digest document and
// snapshot are always produced, even on total fetch failure; only render and
// persist failures (or cancellation) propagate as errors.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	startedAt := o.now().UTC()
	date := opts.Date
	if date == "" {
		date = startedAt.Format("2006-01-02")
	}

	res := &Result{RunID: uuid.NewString(), Date: date}
	log := newRunLog(o.now)
	defer o.flushLog(log)
	log.add(StageFetchPrimary, fmt.Sprintf("run %s starting for %s", res.RunID, date))

	query := o.buildQuery(date, opts.Historical, startedAt)

	// failures collects the stage-qualified messages the rendered digest
	// surfaces as its error banner.
	var failures []string
	live := !opts.Historical

	// FETCH_PRIMARY: stage-fatal but pipeline-continuing. The digest is
	// still rendered so the user sees an error artifact instead of silence.
	papers, fetchErr := o.fetchPrimary(ctx, query)
	if fetchErr != nil {
		if isAborted(fetchErr) {
			return nil, fetchErr
		}
		res.FetchError = fetchErr.Error()
		papers = nil
		failures = append(failures, fmt.Sprintf("%s failed: %s", StageFetchPrimary, fetchErr.Error()))
		log.add(StageFetchPrimary, "failed: "+fetchErr.Error())
		o.notify(StageFetchPrimary, "failed: "+fetchErr.Error())
		o.recordStageError(StageFetchPrimary, fetchErr, live)
	} else {
		log.add(StageFetchPrimary, fmt.Sprintf("%d papers", len(papers)))
		o.notify(StageFetchPrimary, fmt.Sprintf("%d papers", len(papers)))
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// FETCH_SECONDARY: fully non-fatal.
	var community []core.Paper
	if o.cfg.CommunityEnabled && o.secondary != nil {
		var err error
		community, err = o.secondary.Fetch(ctx, query)
		if err != nil {
			log.add(StageFetchSecondary, "failed (ignored): "+err.Error())
			logger.Warn("community feed fetch failed", "error", err.Error())
			community = nil
		} else {
			log.add(StageFetchSecondary, fmt.Sprintf("%d items", len(community)))
		}
	}
	for _, extra := range o.extras {
		extraPapers, err := extra.Fetch(ctx, query)
		if err != nil {
			log.add(StageFetchSecondary, "custom feed failed (ignored): "+err.Error())
			logger.Warn("custom feed fetch failed", "error", err.Error())
			continue
		}
		papers = append(papers, extraPapers...)
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// MERGE_ENRICH: cross-reference community items onto primary records by
	// normalized base ID.
	papers = o.mergeCommunity(papers, community, date, log)
	o.notify(StageMergeEnrich, fmt.Sprintf("%d papers in pool", len(papers)))

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// DEDUP: drop already-surfaced IDs unless the caller asked otherwise.
	if !opts.SkipDedup && o.dedup != nil {
		kept := papers[:0:0]
		for _, p := range papers {
			if !o.dedup.Has(p.ID) {
				kept = append(kept, p)
			}
		}
		log.add(StageDedup, fmt.Sprintf("%d of %d papers new", len(kept), len(papers)))
		papers = kept
	} else {
		log.add(StageDedup, "skipped")
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// RANK.
	ranked := rank.Papers(papers, o.cfg.Interests, o.rankOptions())
	included, excluded := splitBySignal(ranked)
	res.Papers = included
	log.add(StageRank, fmt.Sprintf("%d ranked, %d without signal", len(included), len(excluded)))
	o.notify(StageRank, fmt.Sprintf("%d ranked", len(included)))

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// LLM_SCORE: optional, non-fatal; keyword/direction order stays truth on
	// failure, but the failure is recorded and shows in the digest.
	if o.provider != nil && len(res.Papers) > 0 {
		scored, err := o.llmScore(ctx, res.Papers, log)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s failed: %s", StageLLMScore, err.Error()))
			o.recordStageError(StageLLMScore, err, live)
		} else {
			res.Papers = scored
		}
	} else {
		log.add(StageLLMScore, "skipped")
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// TRENDING: hotness over the papers the ranking excluded, never merged
	// into the primary list.
	if o.cfg.TrendingEnabled {
		res.Trending = o.trending(excluded)
		log.add(StageTrending, fmt.Sprintf("%d surfaced", len(res.Trending)))
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// FULLTEXT_ENRICH: optional, best-effort.
	var excerpts map[string]string
	if o.cfg.FullTextEnabled && o.fullText != nil {
		excerpts = o.fetchFullText(ctx, res.Papers, log)
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// LLM_DIGEST: optional; failure substitutes a visible message in the
	// narrative slot and is recorded like any other stage failure.
	if o.provider != nil && o.cfg.LLMDigest {
		text, err := o.llmDigest(ctx, date, res.Papers, excerpts, log)
		if err != nil {
			res.DigestText = fmt.Sprintf("_LLM failed: %v_", err)
			failures = append(failures, fmt.Sprintf("%s failed: %s", StageLLMDigest, err.Error()))
			o.recordStageError(StageLLMDigest, err, live)
		} else {
			res.DigestText = text
		}
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// RENDER.
	banner := strings.Join(failures, "; ")
	res.Document = render.Digest(render.Input{
		Date:            date,
		Papers:          res.Papers,
		DigestText:      res.DigestText,
		Trending:        res.Trending,
		DirectionTotals: relevance.AggregateDirections(res.Papers),
		ErrorBanner:     banner,
	})
	log.add(StageRender, fmt.Sprintf("%d bytes", len(res.Document)))

	// PERSIST_SNAPSHOT: the one boundary where failure escapes. No "empty
	// success" when the primary deliverable cannot be written.
	res.DocumentPath = fmt.Sprintf("%s/%s.md", o.cfg.DigestFolder, date)
	if err := o.docs.WriteNote(res.DocumentPath, res.Document); err != nil {
		log.add(StagePersistSnapshot, "digest write failed: "+err.Error())
		return nil, fmt.Errorf("failed to persist digest: %w", err)
	}
	if o.snapshots != nil {
		snap := core.DailySnapshot{
			Date:      date,
			Papers:    res.Papers,
			FetchedAt: startedAt,
			Error:     res.FetchError,
		}
		if err := o.snapshots.Write(snap); err != nil {
			log.add(StagePersistSnapshot, "snapshot write failed: "+err.Error())
			return nil, fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}
	log.add(StagePersistSnapshot, res.DocumentPath)
	o.notify(StagePersistSnapshot, res.DocumentPath)

	// UPDATE_DEDUP / UPDATE_STATE: live runs only, so backfills never
	// corrupt the scheduler's view of "today already ran".
	if !opts.Historical && !opts.SkipDedup && o.dedup != nil {
		ids := surfacedIDs(res.Papers, res.Trending)
		if err := o.dedup.MarkSeenBatch(ids, date); err != nil {
			log.add(StageUpdateDedup, "failed: "+err.Error())
			logger.Warn("dedup update failed", "error", err.Error())
		} else {
			log.add(StageUpdateDedup, fmt.Sprintf("%d ids marked", len(ids)))
		}
	}
	if !opts.Historical && o.runState != nil {
		if err := o.runState.MarkRun(o.now().UTC()); err != nil {
			logger.Warn("run state update failed", "error", err.Error())
		} else if len(failures) == 0 {
			_ = o.runState.ClearError()
		}
		log.add(StageUpdateState, "last run recorded")
	}

	return res, nil
}

// fetchPrimary retries rate-limited fetches on a capped backoff schedule
// before surfacing the error. Other failures surface immediately.
func (o *Orchestrator) fetchPrimary(ctx context.Context, q sources.Query) ([]core.Paper, error) {
	if o.primary == nil {
		return nil, fmt.Errorf("no primary feed configured")
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		papers, err := o.primary.Fetch(ctx, q)
		if err == nil {
			return papers, nil
		}
		if !errors.Is(err, sources.ErrRateLimited) || attempt >= len(rateLimitBackoff) {
			return nil, err
		}
		lastErr = err
		delay := rateLimitBackoff[attempt]
		logger.Warn("primary feed rate limited, retrying", "attempt", attempt+1, "delay", delay.String())
		if err := o.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, lastErr)
		}
	}
}

func (o *Orchestrator) buildQuery(date string, historical bool, now time.Time) sources.Query {
	q := sources.Query{
		Categories: o.cfg.Categories,
		Keywords:   o.cfg.Keywords,
		MaxResults: o.cfg.MaxResults,
		SortBy:     o.cfg.SortBy,
	}
	if historical {
		day, err := time.Parse("2006-01-02", date)
		if err == nil {
			q.WindowStart = day.UTC()
			q.WindowEnd = day.UTC().Add(24*time.Hour - time.Second)
		}
	} else {
		q.WindowStart = now.Add(-24 * time.Hour)
		q.WindowEnd = now
	}
	return q
}

// mergeCommunity attaches community signals to primary records and, when
// configured, folds unmatched community items into the scoring pool.
func (o *Orchestrator) mergeCommunity(papers, community []core.Paper, date string, log *runLog) []core.Paper {
	if len(community) == 0 {
		return papers
	}

	byNorm := make(map[string]int, len(papers))
	for i, p := range papers {
		byNorm[core.NormalizeID(p.ID)] = i
	}

	enriched, folded, filtered := 0, 0, 0
	for _, item := range community {
		norm := core.NormalizeID(item.ID)

		streak := 0
		if o.tracking != nil {
			var err error
			streak, err = o.tracking.Track(norm, item.Title, date)
			if err != nil {
				logger.Warn("tracking update failed", "id", norm, "error", err.Error())
			}
		}

		if i, ok := byNorm[norm]; ok {
			papers[i].Upvotes = item.Upvotes
			papers[i].Streak = streak
			if item.Links.Community != "" {
				papers[i].Links.Community = item.Links.Community
			}
			enriched++
			continue
		}

		if !o.cfg.CommunityFoldIn {
			continue
		}
		if o.cfg.CommunityFilterRepeat && o.tracking != nil && o.tracking.SeenBefore(norm, date) {
			filtered++
			continue
		}
		item.Streak = streak
		papers = append(papers, item)
		folded++
	}

	log.add(StageMergeEnrich, fmt.Sprintf("%d enriched, %d folded in, %d repeat-filtered", enriched, folded, filtered))
	return papers
}

func (o *Orchestrator) rankOptions() rank.Options {
	opts := rank.Options{}
	if o.cfg.DirectionsEnabled {
		opts.Directions = o.cfg.Directions
		opts.DirectionTopK = o.cfg.DirectionTopK
	}
	return opts
}

func (o *Orchestrator) llmScore(ctx context.Context, ranked []core.Paper, log *runLog) ([]core.Paper, error) {
	topN := o.cfg.LLMScoreTopN
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}

	scored, err := llm.ScorePapers(ctx, o.provider, ranked[:topN], llm.ScoreOptions{
		Temperature: o.cfg.LLMTemperature,
		MaxTokens:   o.cfg.LLMMaxTokens,
	})
	if err != nil {
		log.add(StageLLMScore, "failed: "+err.Error())
		logger.Warn("LLM scoring failed, keeping keyword ranking", "error", err.Error())
		return nil, err
	}

	log.add(StageLLMScore, fmt.Sprintf("%d papers scored", topN))
	o.notify(StageLLMScore, fmt.Sprintf("%d papers scored", topN))
	return append(scored, ranked[topN:]...), nil
}

func (o *Orchestrator) trending(excluded []core.Paper) []core.Paper {
	now := o.now().UTC()
	var hot []core.Paper
	for _, p := range excluded {
		h := relevance.ScoreHotness(p, now)
		if h.Score < o.cfg.TrendingMin {
			continue
		}
		p.HotnessScore = h.Score
		p.HotnessReasons = h.Reasons
		hot = append(hot, p)
	}

	// Highest hotness first; equal scores go to the lower ID.
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].HotnessScore != hot[j].HotnessScore {
			return hot[i].HotnessScore > hot[j].HotnessScore
		}
		return hot[i].ID < hot[j].ID
	})
	if o.cfg.TrendingMax > 0 && len(hot) > o.cfg.TrendingMax {
		hot = hot[:o.cfg.TrendingMax]
	}
	return hot
}

func (o *Orchestrator) fetchFullText(ctx context.Context, ranked []core.Paper, log *runLog) map[string]string {
	topN := o.cfg.FullTextTopN
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}

	excerpts := make(map[string]string)
	for _, p := range ranked[:topN] {
		text, err := o.fullText.Fetch(ctx, core.NormalizeID(p.ID), o.cfg.FullTextChars)
		if err != nil {
			log.add(StageFullTextEnrich, fmt.Sprintf("%s failed (ignored): %s", p.ID, err.Error()))
			continue
		}
		if text != "" {
			excerpts[p.ID] = text
		}
	}
	log.add(StageFullTextEnrich, fmt.Sprintf("%d excerpts", len(excerpts)))
	return excerpts
}

func (o *Orchestrator) llmDigest(ctx context.Context, date string, ranked []core.Paper, excerpts map[string]string, log *runLog) (string, error) {
	topN := o.cfg.LLMScoreTopN
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}

	text, err := llm.GenerateDigest(ctx, o.provider, llm.DigestInput{
		Date:             date,
		Papers:           ranked[:topN],
		DirectionTotals:  relevance.AggregateDirections(ranked),
		FullTextExcerpts: excerpts,
	}, llm.ScoreOptions{Temperature: o.cfg.LLMTemperature, MaxTokens: o.cfg.LLMMaxTokens})
	if err != nil {
		log.add(StageLLMDigest, "failed: "+err.Error())
		logger.Warn("LLM digest failed", "error", err.Error())
		return "", err
	}

	log.add(StageLLMDigest, fmt.Sprintf("%d chars", len(text)))
	return text, nil
}

// recordStageError stores a stage failure in the run state. Historical runs
// leave the live state untouched.
func (o *Orchestrator) recordStageError(stage Stage, err error, live bool) {
	if !live || o.runState == nil {
		return
	}
	if rerr := o.runState.RecordError(string(stage), err.Error(), o.now().UTC()); rerr != nil {
		logger.Warn("failed to record stage error", "stage", string(stage), "error", rerr.Error())
	}
}

// splitBySignal separates papers with any ranking signal from those with
// none; the latter are trending candidates only.
func splitBySignal(ranked []core.Paper) (included, excluded []core.Paper) {
	for _, p := range ranked {
		if p.RankScore > 0 {
			included = append(included, p)
		} else {
			excluded = append(excluded, p)
		}
	}
	return included, excluded
}

func surfacedIDs(groups ...[]core.Paper) []string {
	var ids []string
	for _, papers := range groups {
		for _, p := range papers {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (o *Orchestrator) notify(stage Stage, msg string) {
	if o.observer != nil {
		o.observer.OnStage(Event{Stage: stage, Message: msg, Time: o.now().UTC()})
	}
}

// runLog buffers stage lines in memory and flushes once per run, appending
// to the ops note so history accumulates without per-line I/O.
type runLog struct {
	now   func() time.Time
	lines []string
}

func newRunLog(now func() time.Time) *runLog {
	return &runLog{now: now}
}

func (l *runLog) add(stage Stage, msg string) {
	l.lines = append(l.lines, fmt.Sprintf("%s [%s] %s",
		l.now().UTC().Format(time.RFC3339), stage, msg))
}

func (o *Orchestrator) flushLog(log *runLog) {
	if o.docs == nil || len(log.lines) == 0 {
		return
	}
	if err := o.docs.AppendToNote(o.cfg.OpsLogNote, strings.Join(log.lines, "\n")+"\n"); err != nil {
		logger.Warn("failed to flush run log", "error", err.Error())
	}
}

func checkCancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	return nil
}

func isAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
