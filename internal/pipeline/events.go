package pipeline

import "time"

// Stage names the orchestrator's sequential states. The strings appear in
// run-state records, the ops log and rendered error banners.
type Stage string

const (
	StageFetchPrimary    Stage = "FETCH_PRIMARY"
	StageFetchSecondary  Stage = "FETCH_SECONDARY"
	StageMergeEnrich     Stage = "MERGE_ENRICH"
	StageDedup           Stage = "DEDUP"
	StageRank            Stage = "RANK"
	StageLLMScore        Stage = "LLM_SCORE"
	StageTrending        Stage = "TRENDING"
	StageFullTextEnrich  Stage = "FULLTEXT_ENRICH"
	StageLLMDigest       Stage = "LLM_DIGEST"
	StageRender          Stage = "RENDER"
	StagePersistSnapshot Stage = "PERSIST_SNAPSHOT"
	StageUpdateDedup     Stage = "UPDATE_DEDUP"
	StageUpdateState     Stage = "UPDATE_STATE"
)

// Event is one stage-transition notification.
type Event struct {
	Stage   Stage
	Message string
	Time    time.Time
}

// Observer receives stage-transition events. Progress UIs subscribe here
// instead of threading callbacks through the pipeline.
type Observer interface {
	OnStage(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnStage(e Event) { f(e) }
