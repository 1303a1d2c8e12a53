package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"paperlens/internal/core"
	"paperlens/internal/docstore"
)

const snapshotFolder = "snapshots"

// SnapshotStore persists one DailySnapshot per calendar day. Snapshots are
// immutable once written: re-running a date overwrites the whole record.
type SnapshotStore struct {
	docs docstore.Store
}

// NewSnapshotStore creates a snapshot store over the document store.
func NewSnapshotStore(docs docstore.Store) *SnapshotStore {
	return &SnapshotStore{docs: docs}
}

func snapshotNote(date string) string {
	return fmt.Sprintf("%s/%s.json", snapshotFolder, date)
}

// Write persists the snapshot for its date, replacing any existing record.
func (s *SnapshotStore) Write(snap core.DailySnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", snap.Date, err)
	}
	if err := s.docs.WriteNote(snapshotNote(snap.Date), string(data)); err != nil {
		return fmt.Errorf("failed to persist snapshot %s: %w", snap.Date, err)
	}
	return nil
}

// Read loads the snapshot for date, or docstore.ErrNotExist.
func (s *SnapshotStore) Read(date string) (core.DailySnapshot, error) {
	var snap core.DailySnapshot
	content, err := s.docs.ReadNote(snapshotNote(date))
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(content), &snap); err != nil {
		return snap, fmt.Errorf("snapshot %s corrupt: %w", date, err)
	}
	return snap, nil
}

// Dates lists snapshot dates in ascending order.
func (s *SnapshotStore) Dates() ([]string, error) {
	names, err := s.docs.ListFolder(snapshotFolder)
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, name := range names {
		if strings.HasSuffix(name, ".json") {
			dates = append(dates, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// ReadRange loads all snapshots with from <= date <= to, skipping days that
// have no snapshot.
func (s *SnapshotStore) ReadRange(from, to string) ([]core.DailySnapshot, error) {
	dates, err := s.Dates()
	if err != nil {
		return nil, err
	}
	var snaps []core.DailySnapshot
	for _, date := range dates {
		if date < from || date > to {
			continue
		}
		snap, err := s.Read(date)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
