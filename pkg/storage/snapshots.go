package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sw33tLie/rankbot/internal/utils"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

const stateVersion = 1

// ValidationError is returned when a freshly fetched snapshot set is refused.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "snapshot rejected: " + e.Reason
}

type snapshotFile struct {
	Version  int                      `json:"version"`
	Snapshot *leaderboard.SnapshotSet `json:"snapshot"`
}

// SnapshotStore holds the current snapshot set and its on-disk copy.
type SnapshotStore struct {
	mu      sync.Mutex
	path    string
	tracked []string
	current *leaderboard.SnapshotSet
}

// OpenSnapshotStore loads the snapshot file at path if it exists. tracked lists the
// contest names every snapshot must contain; empty means "whatever the previous one had".
func OpenSnapshotStore(path string, tracked []string) (*SnapshotStore, error) {
	s := &SnapshotStore{path: path, tracked: append([]string(nil), tracked...)}

	var f snapshotFile
	found, err := readJSON(path, &f)
	if err != nil {
		return nil, err
	}
	if found && f.Snapshot != nil {
		if err := f.Snapshot.Validate(); err != nil {
			return nil, fmt.Errorf("stored snapshot %s is invalid: %w", path, err)
		}
		s.current = f.Snapshot
	}
	return s, nil
}

// Current returns a copy of the current snapshot set, or nil before the first refresh.
func (s *SnapshotStore) Current() *leaderboard.SnapshotSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	c := s.current.Clone()
	return &c
}

// Replace validates next, persists it and makes it current. It returns the set that
// was current before (nil on first run). On any error the old set stays current.
func (s *SnapshotStore) Replace(next leaderboard.SnapshotSet) (*leaderboard.SnapshotSet, error) {
	next = next.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(next); err != nil {
		return nil, err
	}
	if err := writeFile(s.path, snapshotFile{Version: stateVersion, Snapshot: &next}); err != nil {
		return nil, fmt.Errorf("could not persist snapshot: %w", err)
	}

	previous := s.current
	s.current = &next
	return previous, nil
}

func (s *SnapshotStore) validate(next leaderboard.SnapshotSet) error {
	if err := next.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	expected := s.tracked
	if len(expected) == 0 && s.current != nil {
		expected = s.current.Contests
	}
	if len(expected) > 0 && !sameNames(expected, next.Contests) {
		return &ValidationError{Reason: fmt.Sprintf("tracked contests changed: expected [%s], got [%s]",
			strings.Join(expected, ", "), strings.Join(next.Contests, ", "))}
	}
	return nil
}

func sameNames(a, b []string) bool {
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return utils.AreSlicesEqual(x, y)
}
