package handlers

import (
	"fmt"

	"paperlens/internal/config"
	"paperlens/internal/docstore"
	"paperlens/internal/fulltext"
	"paperlens/internal/llm"
	"paperlens/internal/logger"
	"paperlens/internal/pipeline"
	"paperlens/internal/sources"
	"paperlens/internal/state"

	"github.com/charmbracelet/lipgloss"
)

// Shared terminal styles for command output.
var (
	styleHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleStage   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleValue   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// stores groups the persistent state built on one document store.
type stores struct {
	docs      docstore.Store
	dedup     *state.DedupStore
	tracking  *state.TrackingStore
	runState  *state.RunStateStore
	snapshots *state.SnapshotStore
}

func openStores() *stores {
	docs := docstore.NewOSDir(config.GetApp().DataDir)
	return &stores{
		docs:      docs,
		dedup:     state.LoadDedup(docs),
		tracking:  state.LoadTracking(docs),
		runState:  state.LoadRunState(docs),
		snapshots: state.NewSnapshotStore(docs),
	}
}

// buildOrchestrator wires the pipeline from configuration. The returned
// cleanup must be called when the run finishes. A missing LLM key is not an
// error; annotation is simply skipped.
func buildOrchestrator(st *stores, observer pipeline.Observer) (*pipeline.Orchestrator, func(), error) {
	cfg := config.Get()
	timeout := config.FeedTimeout()

	primary := sources.NewArxivAdapter(cfg.Feeds.Primary.BaseURL, cfg.Feeds.UserAgent, timeout)

	var secondary sources.Adapter
	if cfg.Feeds.Community.Enabled {
		secondary = sources.NewCommunityAdapter(cfg.Feeds.Community.BaseURL, cfg.Feeds.UserAgent, timeout)
	}

	var extras []sources.Adapter
	if len(cfg.Feeds.CustomRSS) > 0 {
		extras = append(extras, sources.NewRSSAdapter(cfg.Feeds.CustomRSS, cfg.Feeds.UserAgent, timeout))
	}

	var provider llm.Provider
	if client, err := llm.NewClient(cfg.LLM.Model); err != nil {
		logger.Warn("LLM unavailable, running without annotation", "error", err.Error())
	} else {
		provider = client
	}

	cleanup := func() {}
	var fullText fulltext.Fetcher
	if cfg.Digest.FullTextEnabled {
		page := fulltext.NewPageFetcher(cfg.Digest.FullTextBaseURL, cfg.Feeds.UserAgent, timeout)
		if cache, err := fulltext.NewCache(cfg.App.DataDir, page); err != nil {
			logger.Warn("full-text cache unavailable, fetching uncached", "error", err.Error())
			fullText = page
		} else {
			fullText = cache
			cleanup = func() {
				if err := cache.Close(); err != nil {
					logger.Warn("failed to close full-text cache", "error", err.Error())
				}
			}
		}
	}

	orch := pipeline.New(pipeline.Deps{
		Primary:   primary,
		Secondary: secondary,
		Extras:    extras,
		Provider:  provider,
		FullText:  fullText,
		Dedup:     st.dedup,
		Tracking:  st.tracking,
		RunState:  st.runState,
		Snapshots: st.snapshots,
		Docs:      st.docs,
		Observer:  observer,
	}, pipelineConfig(cfg))

	return orch, cleanup, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Interests:         cfg.Interests,
		Directions:        cfg.Directions.Defs,
		DirectionsEnabled: cfg.Directions.Enabled,
		DirectionTopK:     cfg.Directions.TopK,

		Categories: cfg.Feeds.Primary.Categories,
		Keywords:   cfg.Feeds.Primary.Keywords,
		SortBy:     cfg.Feeds.Primary.SortBy,
		MaxResults: cfg.Feeds.MaxResults,

		CommunityEnabled:      cfg.Feeds.Community.Enabled,
		CommunityFoldIn:       cfg.Feeds.Community.FoldIn,
		CommunityFilterRepeat: cfg.Feeds.Community.FilterRepeat,

		LLMScoreTopN:   cfg.LLM.ScoreTopN,
		LLMDigest:      cfg.LLM.Digest,
		LLMTemperature: cfg.LLM.Temperature,
		LLMMaxTokens:   cfg.LLM.MaxTokens,

		TrendingEnabled: cfg.Digest.TrendingEnabled,
		TrendingMin:     cfg.Digest.TrendingMin,
		TrendingMax:     cfg.Digest.TrendingMax,

		FullTextEnabled: cfg.Digest.FullTextEnabled,
		FullTextTopN:    cfg.Digest.FullTextTopN,
		FullTextChars:   cfg.Digest.FullTextChars,

		DigestFolder: cfg.Digest.OutputFolder,
	}
}

// stageObserver prints stage transitions as they happen.
func stageObserver(quiet bool) pipeline.Observer {
	if quiet {
		return nil
	}
	return pipeline.ObserverFunc(func(ev pipeline.Event) {
		fmt.Printf("%s %s\n", styleStage.Render(fmt.Sprintf("[%s]", ev.Stage)), ev.Message)
	})
}
