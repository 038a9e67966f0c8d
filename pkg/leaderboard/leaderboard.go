package leaderboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Top10 is the reserved subscription target for the aggregate top-10 view.
const Top10 = "top10"

// TeamEntry is one row of a contest leaderboard.
type TeamEntry struct {
	Rank        int     `json:"rank"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	SubmittedAt string  `json:"submitted_at"`
}

// ContestSnapshot is the full ranked team list of one contest, ordered by rank.
type ContestSnapshot struct {
	Name  string      `json:"name"`
	Teams []TeamEntry `json:"teams"`
}

// SnapshotSet is one observation of every tracked contest.
type SnapshotSet struct {
	ObservedAt time.Time                  `json:"observed_at"`
	Contests   []string                   `json:"contests"` // display order
	Snapshots  map[string]ContestSnapshot `json:"snapshots"`
}

// NewSnapshotSet builds a set keeping the contests in the order given.
func NewSnapshotSet(observedAt time.Time, snapshots ...ContestSnapshot) SnapshotSet {
	s := SnapshotSet{
		ObservedAt: observedAt,
		Contests:   make([]string, 0, len(snapshots)),
		Snapshots:  make(map[string]ContestSnapshot, len(snapshots)),
	}
	for _, cs := range snapshots {
		s.Contests = append(s.Contests, cs.Name)
		s.Snapshots[cs.Name] = cs
	}
	return s
}

// Find returns the entry for the named team, if present.
func (c ContestSnapshot) Find(name string) (TeamEntry, bool) {
	for _, t := range c.Teams {
		if t.Name == name {
			return t, true
		}
	}
	return TeamEntry{}, false
}

// Top returns at most the first n entries.
func (c ContestSnapshot) Top(n int) []TeamEntry {
	if len(c.Teams) < n {
		n = len(c.Teams)
	}
	return c.Teams[:n]
}

// Validate checks that ranks are contiguous from 1 and names are unique.
func (c ContestSnapshot) Validate() error {
	seen := make(map[string]bool, len(c.Teams))
	for i, t := range c.Teams {
		if t.Rank != i+1 {
			return fmt.Errorf("contest %q: expected rank %d at row %d, got %d", c.Name, i+1, i+1, t.Rank)
		}
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("contest %q: empty team name at rank %d", c.Name, t.Rank)
		}
		if math.IsNaN(t.Score) || math.IsInf(t.Score, 0) {
			return fmt.Errorf("contest %q: score of %q is not a finite number", c.Name, t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("contest %q: duplicate team name %q", c.Name, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Contest returns the snapshot of the named contest, or nil if the set does not track it.
func (s *SnapshotSet) Contest(name string) *ContestSnapshot {
	if s == nil {
		return nil
	}
	cs, ok := s.Snapshots[name]
	if !ok {
		return nil
	}
	return &cs
}

// Validate validates every contest of the set.
func (s SnapshotSet) Validate() error {
	if len(s.Contests) != len(s.Snapshots) {
		return fmt.Errorf("contest list has %d names but %d snapshots", len(s.Contests), len(s.Snapshots))
	}
	for _, name := range s.Contests {
		cs, ok := s.Snapshots[name]
		if !ok {
			return fmt.Errorf("contest %q listed but missing", name)
		}
		if err := cs.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share team slices.
func (s SnapshotSet) Clone() SnapshotSet {
	out := SnapshotSet{
		ObservedAt: s.ObservedAt,
		Contests:   append([]string(nil), s.Contests...),
		Snapshots:  make(map[string]ContestSnapshot, len(s.Snapshots)),
	}
	for k, cs := range s.Snapshots {
		out.Snapshots[k] = ContestSnapshot{Name: cs.Name, Teams: append([]TeamEntry(nil), cs.Teams...)}
	}
	return out
}

// CanonicalTeamName resolves a user-typed team name against the set, case-insensitively.
// Unknown names are returned trimmed but otherwise untouched.
func (s *SnapshotSet) CanonicalTeamName(name string) string {
	name = strings.TrimSpace(name)
	if s == nil {
		return name
	}
	for _, contest := range s.Contests {
		for _, t := range s.Snapshots[contest].Teams {
			if strings.EqualFold(t.Name, name) {
				return t.Name
			}
		}
	}
	return name
}

// ParseScore parses a score cell such as "0.8731" or "1,024.5".
func ParseScore(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty score")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("score %q is not a finite number", raw)
	}
	return v, nil
}

// ParseRank parses a rank cell; leading "#" is tolerated.
func ParseRank(raw string) (int, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	r, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, err
	}
	if r < 1 {
		return 0, fmt.Errorf("rank must be positive, got %d", r)
	}
	return r, nil
}

// FormatScore renders a score without trailing zeros.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
