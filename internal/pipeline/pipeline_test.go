package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"paperlens/internal/core"
	"paperlens/internal/docstore"
	"paperlens/internal/llm"
	"paperlens/internal/sources"
	"paperlens/internal/state"

	"github.com/spf13/afero"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	papers  []core.Paper
	errs    []error // Consumed one per call; nil entries mean success
	calls   int
	queries []sources.Query
}

func (f *fakeAdapter) Fetch(ctx context.Context, q sources.Query) ([]core.Paper, error) {
	f.queries = append(f.queries, q)
	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	return f.papers, nil
}

type fakeProvider struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	call := f.calls
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	if call < len(f.responses) {
		return llm.Response{Text: f.responses[call]}, nil
	}
	return llm.Response{Text: "[]"}, nil
}

func paper(id, title string, published time.Time, cats ...string) core.Paper {
	return core.Paper{
		ID:         id,
		Title:      title,
		Abstract:   title + " abstract",
		Categories: cats,
		Published:  published,
		Source:     core.SourcePrimary,
	}
}

type env struct {
	docs      docstore.Store
	dedup     *state.DedupStore
	tracking  *state.TrackingStore
	runState  *state.RunStateStore
	snapshots *state.SnapshotStore
}

func newEnv() *env {
	docs := docstore.NewFS(afero.NewMemMapFs())
	return &env{
		docs:      docs,
		dedup:     state.LoadDedup(docs),
		tracking:  state.LoadTracking(docs),
		runState:  state.LoadRunState(docs),
		snapshots: state.NewSnapshotStore(docs),
	}
}

func newOrchestrator(e *env, deps Deps, cfg Config) *Orchestrator {
	deps.Dedup = e.dedup
	deps.Tracking = e.tracking
	deps.RunState = e.runState
	deps.Snapshots = e.snapshots
	deps.Docs = e.docs
	if deps.Now == nil {
		deps.Now = func() time.Time { return testNow }
	}
	if cfg.Interests == nil {
		cfg.Interests = []core.InterestKeyword{{Keyword: "transformer", Weight: 3}}
	}
	return New(deps, cfg)
}

func TestRunEmptyFetchProducesDigestWithoutBanner(t *testing.T) {
	e := newEnv()
	o := newOrchestrator(e, Deps{Primary: &fakeAdapter{}}, Config{})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FetchError != "" {
		t.Errorf("expected no fetch error, got %q", res.FetchError)
	}
	if strings.Contains(res.Document, "⚠️") {
		t.Error("empty fetch must not produce an error banner")
	}
	if !strings.Contains(res.Document, "No papers ranked today.") {
		t.Error("expected empty-day message in digest")
	}
	if !e.docs.FileExists("digests/2025-06-15.md") {
		t.Error("digest note was not persisted")
	}
}

func TestRunFetchFailureStillRenders(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{errs: []error{errors.New("connection refused")}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("fetch failure must not fail the run: %v", err)
	}
	if res.FetchError == "" {
		t.Error("expected FetchError to be set")
	}
	if !strings.Contains(res.Document, "FETCH_PRIMARY failed") {
		t.Errorf("expected error banner in document, got:\n%s", res.Document)
	}

	rs := e.runState.Current()
	if rs.LastError == nil || rs.LastError.Stage != "FETCH_PRIMARY" {
		t.Errorf("expected FETCH_PRIMARY error recorded in run state, got %+v", rs.LastError)
	}
}

func TestRunRateLimitRetriesTransparently(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{
		papers: []core.Paper{paper("primary:2506.00001", "Transformer efficiency", testNow.Add(-2*time.Hour))},
		errs: []error{
			fmt.Errorf("fetch: %w", sources.ErrRateLimited),
			fmt.Errorf("fetch: %w", sources.ErrRateLimited),
			nil,
		},
	}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})

	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FetchError != "" {
		t.Errorf("retry success must look like plain success, got fetch error %q", res.FetchError)
	}
	if primary.calls != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", primary.calls)
	}
	if len(slept) != 2 || slept[0] != 5*time.Second || slept[1] != 15*time.Second {
		t.Errorf("unexpected backoff schedule: %v", slept)
	}
	if len(res.Papers) != 1 {
		t.Errorf("expected 1 ranked paper, got %d", len(res.Papers))
	}
}

func TestRunRateLimitExhaustsRetries(t *testing.T) {
	e := newEnv()
	rateErr := fmt.Errorf("fetch: %w", sources.ErrRateLimited)
	primary := &fakeAdapter{errs: []error{rateErr, rateErr, rateErr, rateErr}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if primary.calls != 4 {
		t.Errorf("expected initial attempt plus 3 retries, got %d calls", primary.calls)
	}
	if res.FetchError == "" {
		t.Error("expected fetch error after retries exhausted")
	}
}

func TestRunLLMFailureKeepsKeywordOrder(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{papers: []core.Paper{
		paper("primary:2506.00001", "Transformer attention study", testNow.Add(-3*time.Hour)),
		paper("primary:2506.00002", "Transformer scaling", testNow.Add(-1*time.Hour)),
	}}
	provider := &fakeProvider{err: errors.New("model overloaded")}
	o := newOrchestrator(e, Deps{Primary: primary, Provider: provider}, Config{})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(res.Papers))
	}
	for _, p := range res.Papers {
		if p.LLMScore != 0 {
			t.Errorf("paper %s has LLM score despite provider failure", p.ID)
		}
	}
	// Keyword ranking survives: tie broken by recency.
	if res.Papers[0].ID != "primary:2506.00002" {
		t.Errorf("expected keyword order preserved, got %s first", res.Papers[0].ID)
	}
}

func TestRunLLMFailureRecordedAndVisible(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{papers: []core.Paper{
		paper("primary:2506.00001", "Transformer attention study", testNow.Add(-3*time.Hour)),
	}}
	provider := &fakeProvider{err: errors.New("model overloaded")}
	o := newOrchestrator(e, Deps{Primary: primary, Provider: provider}, Config{LLMDigest: true})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rs := e.runState.Current()
	if rs.LastError == nil {
		t.Fatal("LLM failure must be recorded in run state")
	}
	if rs.LastError.Stage != string(StageLLMDigest) {
		t.Errorf("expected last recorded stage %s, got %s", StageLLMDigest, rs.LastError.Stage)
	}
	if !strings.Contains(res.Document, "LLM_SCORE failed") {
		t.Errorf("expected scoring failure named in the digest banner, got:\n%s", res.Document)
	}
	if !strings.Contains(res.Document, "LLM_DIGEST failed") {
		t.Errorf("expected digest failure named in the digest banner, got:\n%s", res.Document)
	}
	if !strings.Contains(res.Document, "_LLM failed:") {
		t.Error("expected visible substitute message in the narrative slot")
	}
}

func TestRunHistoricalLLMFailureLeavesRunState(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{papers: []core.Paper{
		paper("primary:2506.00001", "Transformer attention study", testNow.Add(-3*time.Hour)),
	}}
	provider := &fakeProvider{err: errors.New("model overloaded")}
	o := newOrchestrator(e, Deps{Primary: primary, Provider: provider}, Config{LLMDigest: true})

	if _, err := o.Run(context.Background(), RunOptions{Date: "2025-06-10", Historical: true, SkipDedup: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if e.runState.Current().LastError != nil {
		t.Error("historical run must not record stage errors")
	}
}

func TestRunSuccessClearsRecordedError(t *testing.T) {
	e := newEnv()
	if err := e.runState.RecordError("LLM_SCORE", "model overloaded", testNow); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	primary := &fakeAdapter{papers: []core.Paper{
		paper("primary:2506.00001", "Transformer attention study", testNow.Add(-3*time.Hour)),
	}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})

	if _, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if e.runState.Current().LastError != nil {
		t.Error("clean run must clear the previously recorded error")
	}
}

func TestRunQueryCarriesConfiguredKeywords(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{
		Keywords: []string{"attention", "state space"},
	})

	if _, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	q := primary.queries[0]
	if len(q.Keywords) != 2 || q.Keywords[0] != "attention" || q.Keywords[1] != "state space" {
		t.Errorf("expected configured keywords on the upstream query, got %v", q.Keywords)
	}
}

func TestRunLLMScoresReorder(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{papers: []core.Paper{
		paper("primary:2506.00001", "Transformer attention study", testNow.Add(-3*time.Hour)),
		paper("primary:2506.00002", "Transformer scaling", testNow.Add(-1*time.Hour)),
	}}
	provider := &fakeProvider{responses: []string{
		`[{"id": "primary:2506.00001", "score": 9, "reason": "novel"}, {"id": "primary:2506.00002", "score": 4, "reason": "incremental"}]`,
	}}
	o := newOrchestrator(e, Deps{Primary: primary, Provider: provider}, Config{LLMScoreTopN: 10})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Papers[0].ID != "primary:2506.00001" || res.Papers[0].LLMScore != 9 {
		t.Errorf("expected LLM-scored 9 first, got %s (%.0f)", res.Papers[0].ID, res.Papers[0].LLMScore)
	}
}

func TestRunMergeEnrichesPrimaryWithCommunitySignals(t *testing.T) {
	e := newEnv()
	p := paper("primary:2506.00001v2", "Transformer attention study", testNow.Add(-3*time.Hour))
	c := core.Paper{
		ID:      "community:2506.00001",
		Title:   "Transformer attention study",
		Upvotes: 42,
		Links:   core.Links{Community: "https://example.com/papers/2506.00001"},
		Source:  core.SourceCommunity,
	}
	primary := &fakeAdapter{papers: []core.Paper{p}}
	secondary := &fakeAdapter{papers: []core.Paper{c}}
	o := newOrchestrator(e, Deps{Primary: primary, Secondary: secondary}, Config{
		CommunityEnabled: true,
		CommunityFoldIn:  true,
	})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Papers) != 1 {
		t.Fatalf("v2 and base ID must merge into one paper, got %d", len(res.Papers))
	}
	got := res.Papers[0]
	if got.ID != "primary:2506.00001v2" {
		t.Errorf("primary record must win the merge, got %s", got.ID)
	}
	if got.Upvotes != 42 {
		t.Errorf("expected upvotes carried over, got %d", got.Upvotes)
	}
	if got.Links.Community == "" {
		t.Error("expected community link carried over")
	}
	if got.Streak != 1 {
		t.Errorf("expected streak 1 on first sighting, got %d", got.Streak)
	}
}

func TestRunCommunityFoldInAndRepeatFilter(t *testing.T) {
	e := newEnv()
	c := core.Paper{
		ID:       "community:9999.11111",
		Title:    "Transformer world model",
		Abstract: "transformer agents",
		Source:   core.SourceCommunity,
	}
	primary := &fakeAdapter{}
	secondary := &fakeAdapter{papers: []core.Paper{c}}
	o := newOrchestrator(e, Deps{Primary: primary, Secondary: secondary}, Config{
		CommunityEnabled:      true,
		CommunityFoldIn:       true,
		CommunityFilterRepeat: true,
	})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15", SkipDedup: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Papers) != 1 {
		t.Fatalf("expected community item folded in, got %d papers", len(res.Papers))
	}

	// Next day the same item is a repeat and gets filtered.
	res2, err := o.Run(context.Background(), RunOptions{Date: "2025-06-16", SkipDedup: true})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(res2.Papers) != 0 {
		t.Errorf("repeat community item must be filtered, got %d papers", len(res2.Papers))
	}
	if e.tracking.Streak("9999.11111") != 2 {
		t.Errorf("tracking must still count the repeat day, got streak %d", e.tracking.Streak("9999.11111"))
	}
}

func TestRunDedupFiltersSeenAndRecordsNew(t *testing.T) {
	e := newEnv()
	seen := paper("primary:2506.00001", "Transformer attention", testNow.Add(-2*time.Hour))
	fresh := paper("primary:2506.00002", "Transformer scaling", testNow.Add(-2*time.Hour))
	if err := e.dedup.MarkSeenBatch([]string{seen.ID}, "2025-06-14"); err != nil {
		t.Fatalf("seed dedup: %v", err)
	}

	primary := &fakeAdapter{papers: []core.Paper{seen, fresh}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Papers) != 1 || res.Papers[0].ID != fresh.ID {
		t.Fatalf("expected only the unseen paper, got %+v", res.Papers)
	}
	if !e.dedup.Has(fresh.ID) {
		t.Error("surfaced paper must be marked seen after the run")
	}
}

func TestRunHistoricalSkipsStateUpdates(t *testing.T) {
	e := newEnv()
	p := paper("primary:2506.00001", "Transformer attention", testNow.Add(-2*time.Hour))
	primary := &fakeAdapter{papers: []core.Paper{p}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})

	_, err := o.Run(context.Background(), RunOptions{Date: "2025-06-10", Historical: true, SkipDedup: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if e.dedup.Has(p.ID) {
		t.Error("historical run must not touch the dedup map")
	}
	if !e.runState.Current().LastDailyRun.IsZero() {
		t.Error("historical run must not record a daily run")
	}

	snap, err := e.snapshots.Read("2025-06-10")
	if err != nil {
		t.Fatalf("snapshot missing after historical run: %v", err)
	}
	if len(snap.Papers) != 1 {
		t.Errorf("expected snapshot with 1 paper, got %d", len(snap.Papers))
	}

	q := primary.queries[0]
	if q.WindowStart.Format("2006-01-02") != "2025-06-10" {
		t.Errorf("historical window must pin the target date, got %s", q.WindowStart)
	}
}

func TestRunTrendingFromExcludedPapers(t *testing.T) {
	e := newEnv()
	hot := core.Paper{
		ID:         "primary:2506.00009v3",
		Title:      "Unrelated but hot",
		Abstract:   "nothing matching",
		Categories: []string{"cs.AI", "cs.CL", "cs.LG"},
		Published:  testNow.Add(-2 * time.Hour),
		Upvotes:    30,
		Source:     core.SourcePrimary,
	}
	cold := paper("primary:2506.00010", "Unrelated and cold", testNow.Add(-100*time.Hour))
	primary := &fakeAdapter{papers: []core.Paper{hot, cold}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{
		TrendingEnabled: true,
		TrendingMin:     6,
		TrendingMax:     5,
	})

	res, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Papers) != 0 {
		t.Fatalf("no paper matches interests, ranked list must be empty, got %d", len(res.Papers))
	}
	if len(res.Trending) != 1 || res.Trending[0].ID != hot.ID {
		t.Fatalf("expected only the hot paper trending, got %+v", res.Trending)
	}
	if len(res.Trending[0].HotnessReasons) == 0 {
		t.Error("trending paper must carry hotness reasons")
	}
	if !e.dedup.Has(hot.ID) {
		t.Error("trending papers count as surfaced for dedup")
	}
}

func TestRunCancellationAborts(t *testing.T) {
	e := newEnv()
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeAdapter{}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})
	cancel()

	_, err := o.Run(ctx, RunOptions{Date: "2025-06-15"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestCoordinatorRejectsConcurrentDaily(t *testing.T) {
	e := newEnv()
	started := make(chan struct{})
	unblock := make(chan struct{})
	primary := &fakeAdapter{errs: []error{fmt.Errorf("fetch: %w", sources.ErrRateLimited)}}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})
	o.sleep = func(ctx context.Context, d time.Duration) error {
		close(started)
		<-unblock
		return nil
	}

	c := NewCoordinator()
	done := make(chan error, 1)
	go func() {
		_, err := c.RunDaily(context.Background(), o, RunOptions{Date: "2025-06-15"})
		done <- err
	}()

	<-started
	if !c.Busy() {
		t.Error("coordinator must report busy during a run")
	}
	if _, err := c.RunDaily(context.Background(), o, RunOptions{Date: "2025-06-15"}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for concurrent daily run, got %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if c.Busy() {
		t.Error("coordinator must be idle after the run completes")
	}
}

func TestRunObserverSeesStages(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{papers: []core.Paper{
		paper("primary:2506.00001", "Transformer attention", testNow.Add(-2*time.Hour)),
	}}
	var stages []Stage
	obs := ObserverFunc(func(ev Event) { stages = append(stages, ev.Stage) })
	o := newOrchestrator(e, Deps{Primary: primary, Observer: obs}, Config{})

	if _, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantOrder := []Stage{StageFetchPrimary, StageMergeEnrich, StageRank, StagePersistSnapshot}
	i := 0
	for _, s := range stages {
		if i < len(wantOrder) && s == wantOrder[i] {
			i++
		}
	}
	if i != len(wantOrder) {
		t.Errorf("expected stage order %v within %v", wantOrder, stages)
	}
}

func TestRunAppendsOpsLog(t *testing.T) {
	e := newEnv()
	primary := &fakeAdapter{}
	o := newOrchestrator(e, Deps{Primary: primary}, Config{})

	if _, err := o.Run(context.Background(), RunOptions{Date: "2025-06-15"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	content, err := e.docs.ReadNote("log/pipeline.md")
	if err != nil {
		t.Fatalf("ops log missing: %v", err)
	}
	if !strings.Contains(content, "[FETCH_PRIMARY]") || !strings.Contains(content, "[DEDUP]") {
		t.Errorf("ops log missing stage lines:\n%s", content)
	}
}
