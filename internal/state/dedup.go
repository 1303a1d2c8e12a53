// Package state implements the small persisted maps shared across runs: the
// permanent dedup map, the community-feed tracking map, the run state record
// and the daily snapshot store. All follow load-fully/mutate/persist-wholesale
// semantics, acceptable while the maps stay in the thousands of entries.
package state

import (
	"encoding/json"
	"fmt"

	"paperlens/internal/docstore"
	"paperlens/internal/logger"
)

const dedupNote = "state/dedup.json"

// DedupStore is the permanent {id -> firstSeenDate} map. Presence of an ID
// means "do not resurface".
type DedupStore struct {
	docs docstore.Store
	seen map[string]string
}

// LoadDedup reads the persisted dedup map. Corrupt or missing data degrades
// to an empty map rather than failing the pipeline; the cost is at most one
// day of re-surfaced items.
func LoadDedup(docs docstore.Store) *DedupStore {
	s := &DedupStore{docs: docs, seen: make(map[string]string)}

	content, err := docs.ReadNote(dedupNote)
	if err != nil {
		if err != docstore.ErrNotExist {
			logger.Warn("dedup map unreadable, starting empty", "error", err.Error())
		}
		return s
	}
	if err := json.Unmarshal([]byte(content), &s.seen); err != nil {
		logger.Warn("dedup map corrupt, starting empty", "error", err.Error())
		s.seen = make(map[string]string)
	}
	return s
}

// Has reports whether the raw (version-suffixed) ID has been surfaced before.
func (s *DedupStore) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of tracked IDs.
func (s *DedupStore) Len() int {
	return len(s.seen)
}

// MarkSeenBatch marks every not-yet-present ID with date and persists once
// for the whole batch. Existing entries keep their original first-seen date,
// so marking is idempotent.
func (s *DedupStore) MarkSeenBatch(ids []string, date string) error {
	changed := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.seen[id]; !ok {
			s.seen[id] = date
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persist()
}

// Prune deletes entries first seen before the cutoff date (YYYY-MM-DD).
// Dates compare lexicographically; malformed entries are dropped. Meant to
// run out-of-band, not on the pipeline hot path.
func (s *DedupStore) Prune(cutoff string) (int, error) {
	removed := 0
	for id, date := range s.seen {
		if len(date) != len("2006-01-02") || date < cutoff {
			delete(s.seen, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persist()
}

func (s *DedupStore) persist() error {
	data, err := json.MarshalIndent(s.seen, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dedup map: %w", err)
	}
	if err := s.docs.WriteNote(dedupNote, string(data)); err != nil {
		return fmt.Errorf("failed to persist dedup map: %w", err)
	}
	return nil
}
