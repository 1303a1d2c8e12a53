package state

import (
	"encoding/json"
	"fmt"
	"time"

	"paperlens/internal/core"
	"paperlens/internal/docstore"
	"paperlens/internal/logger"
)

const runStateNote = "state/runstate.json"

// RunStateStore persists the single RunState record the scheduler reads to
// decide whether today's run is due.
type RunStateStore struct {
	docs  docstore.Store
	state core.RunState
}

// LoadRunState reads the persisted run state, degrading to a zero record on
// corrupt or missing data.
func LoadRunState(docs docstore.Store) *RunStateStore {
	s := &RunStateStore{docs: docs}

	content, err := docs.ReadNote(runStateNote)
	if err != nil {
		if err != docstore.ErrNotExist {
			logger.Warn("run state unreadable, starting fresh", "error", err.Error())
		}
		return s
	}
	if err := json.Unmarshal([]byte(content), &s.state); err != nil {
		logger.Warn("run state corrupt, starting fresh", "error", err.Error())
		s.state = core.RunState{}
	}
	return s
}

// Current returns the in-memory run state.
func (s *RunStateStore) Current() core.RunState {
	return s.state
}

// MarkRun records a completed live daily run. Backfill runs over past dates
// must not call this, or the scheduler would skip today's real run.
func (s *RunStateStore) MarkRun(at time.Time) error {
	s.state.LastDailyRun = at
	return s.persist()
}

// RecordError stores the most recent stage failure.
func (s *RunStateStore) RecordError(stage, message string, at time.Time) error {
	s.state.LastError = &core.RunError{Time: at, Stage: stage, Message: message}
	return s.persist()
}

// ClearError removes a previously recorded failure.
func (s *RunStateStore) ClearError() error {
	if s.state.LastError == nil {
		return nil
	}
	s.state.LastError = nil
	return s.persist()
}

func (s *RunStateStore) persist() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}
	if err := s.docs.WriteNote(runStateNote, string(data)); err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	return nil
}
