package state

import (
	"encoding/json"
	"fmt"

	"paperlens/internal/core"
	"paperlens/internal/docstore"
	"paperlens/internal/logger"
)

const trackingNote = "state/tracking.json"

// TrackingStore counts cross-day reappearances of community-feed items,
// keyed by normalized base ID. Unlike the permanent dedup map, this store
// exists for repeat-exposure control and its filtering is configurable.
type TrackingStore struct {
	docs    docstore.Store
	entries map[string]*core.TrackEntry
}

// LoadTracking reads the persisted tracking map, degrading to empty on
// corrupt data.
func LoadTracking(docs docstore.Store) *TrackingStore {
	s := &TrackingStore{docs: docs, entries: make(map[string]*core.TrackEntry)}

	content, err := docs.ReadNote(trackingNote)
	if err != nil {
		if err != docstore.ErrNotExist {
			logger.Warn("tracking map unreadable, starting empty", "error", err.Error())
		}
		return s
	}
	if err := json.Unmarshal([]byte(content), &s.entries); err != nil {
		logger.Warn("tracking map corrupt, starting empty", "error", err.Error())
		s.entries = make(map[string]*core.TrackEntry)
	}
	return s
}

// Track records an observation of id on date (YYYY-MM-DD) and returns the
// current streak count. The first observation creates an entry with count 1;
// re-observing on the same date is a no-op; a later date increments the count
// exactly once. Changes persist immediately.
func (s *TrackingStore) Track(id, title, date string) (int, error) {
	entry, ok := s.entries[id]
	if !ok {
		entry = &core.TrackEntry{Title: title, FirstSeen: date, LastSeen: date, Count: 1}
		s.entries[id] = entry
		return entry.Count, s.persist()
	}

	if entry.LastSeen == date {
		return entry.Count, nil
	}

	entry.Count++
	entry.LastSeen = date
	if title != "" {
		entry.Title = title
	}
	return entry.Count, s.persist()
}

// SeenBefore reports whether id was first seen strictly before date. Same-day
// recurrences are not "before", so an item stays visible throughout the day
// it first appears.
func (s *TrackingStore) SeenBefore(id, date string) bool {
	entry, ok := s.entries[id]
	return ok && entry.FirstSeen < date
}

// Streak returns the current count for id, zero when untracked.
func (s *TrackingStore) Streak(id string) int {
	if entry, ok := s.entries[id]; ok {
		return entry.Count
	}
	return 0
}

// Len returns the number of tracked items.
func (s *TrackingStore) Len() int {
	return len(s.entries)
}

func (s *TrackingStore) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking map: %w", err)
	}
	if err := s.docs.WriteNote(trackingNote, string(data)); err != nil {
		return fmt.Errorf("failed to persist tracking map: %w", err)
	}
	return nil
}
