// Package diff compares two observations of a contest and describes what changed
// for a single subscription target.
package diff

import (
	"sort"

	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

// Kind tags a ChangeEvent.
type Kind string

const (
	RankImproved       Kind = "rank_improved"
	RankWorsened       Kind = "rank_worsened"
	ScoreImproved      Kind = "score_improved"
	ScoreDecreased     Kind = "score_decreased"
	FirstObserved      Kind = "first_observed"
	Vanished           Kind = "vanished"
	EnteredTop10       Kind = "entered_top10"
	ExitedTop10        Kind = "exited_top10"
	Top10ScoreImproved Kind = "top10_score_improved"
)

const topN = 10

// ChangeEvent is one semantically distinct change. Which fields are meaningful
// depends on Kind:
//
//	RankImproved, RankWorsened     FromRank, ToRank
//	ScoreImproved, ScoreDecreased  FromScore, ToScore
//	FirstObserved                  ToRank, ToScore, PoolSize
//	Vanished                       FromRank
//	EnteredTop10                   Team, ToRank, ToScore
//	ExitedTop10                    Team, FromRank
//	Top10ScoreImproved             Team, FromScore, ToScore, RankChanged
type ChangeEvent struct {
	Kind        Kind    `json:"kind"`
	Contest     string  `json:"contest"`
	Team        string  `json:"team"`
	FromRank    int     `json:"from_rank,omitempty"`
	ToRank      int     `json:"to_rank,omitempty"`
	FromScore   float64 `json:"from_score,omitempty"`
	ToScore     float64 `json:"to_score,omitempty"`
	PoolSize    int     `json:"pool_size,omitempty"`
	RankChanged bool    `json:"rank_changed,omitempty"`
}

// Options toggles behaviour that is off by default.
type Options struct {
	// ReportVanished emits a Vanished event when a previously seen team is no
	// longer listed in the contest.
	ReportVanished bool
}

// Diff returns the ordered change events for target between previous (nil when the
// contest has never been observed) and current. It is deterministic and pure.
func Diff(previous *leaderboard.ContestSnapshot, current leaderboard.ContestSnapshot, target string, opts Options) []ChangeEvent {
	if target == leaderboard.Top10 {
		return diffTop10(previous, current)
	}
	return diffTeam(previous, current, target, opts)
}

func diffTeam(previous *leaderboard.ContestSnapshot, current leaderboard.ContestSnapshot, team string, opts Options) []ChangeEvent {
	curr, inCurrent := current.Find(team)

	var prev leaderboard.TeamEntry
	inPrevious := false
	if previous != nil {
		prev, inPrevious = previous.Find(team)
	}

	if !inCurrent {
		if inPrevious && opts.ReportVanished {
			return []ChangeEvent{{Kind: Vanished, Contest: current.Name, Team: team, FromRank: prev.Rank}}
		}
		return nil
	}

	if !inPrevious {
		return []ChangeEvent{{
			Kind:     FirstObserved,
			Contest:  current.Name,
			Team:     team,
			ToRank:   curr.Rank,
			ToScore:  curr.Score,
			PoolSize: len(current.Teams),
		}}
	}

	var events []ChangeEvent
	switch {
	case curr.Rank < prev.Rank:
		events = append(events, ChangeEvent{Kind: RankImproved, Contest: current.Name, Team: team, FromRank: prev.Rank, ToRank: curr.Rank})
	case curr.Rank > prev.Rank:
		events = append(events, ChangeEvent{Kind: RankWorsened, Contest: current.Name, Team: team, FromRank: prev.Rank, ToRank: curr.Rank})
	}
	switch {
	case curr.Score > prev.Score:
		events = append(events, ChangeEvent{Kind: ScoreImproved, Contest: current.Name, Team: team, FromScore: prev.Score, ToScore: curr.Score})
	case curr.Score < prev.Score:
		events = append(events, ChangeEvent{Kind: ScoreDecreased, Contest: current.Name, Team: team, FromScore: prev.Score, ToScore: curr.Score})
	}
	return events
}

func diffTop10(previous *leaderboard.ContestSnapshot, current leaderboard.ContestSnapshot) []ChangeEvent {
	if previous == nil {
		return nil
	}
	prevTop := previous.Top(topN)
	currTop := current.Top(topN)

	prevByName := make(map[string]leaderboard.TeamEntry, len(prevTop))
	for _, t := range prevTop {
		prevByName[t.Name] = t
	}
	currByName := make(map[string]leaderboard.TeamEntry, len(currTop))
	for _, t := range currTop {
		currByName[t.Name] = t
	}

	var exits, entries, scores []ChangeEvent
	for _, t := range prevTop {
		if _, ok := currByName[t.Name]; !ok {
			exits = append(exits, ChangeEvent{Kind: ExitedTop10, Contest: current.Name, Team: t.Name, FromRank: t.Rank})
		}
	}
	for _, t := range currTop {
		p, ok := prevByName[t.Name]
		if !ok {
			entries = append(entries, ChangeEvent{Kind: EnteredTop10, Contest: current.Name, Team: t.Name, ToRank: t.Rank, ToScore: t.Score})
			continue
		}
		if p.Score != t.Score {
			scores = append(scores, ChangeEvent{
				Kind:        Top10ScoreImproved,
				Contest:     current.Name,
				Team:        t.Name,
				FromRank:    p.Rank,
				ToRank:      t.Rank,
				FromScore:   p.Score,
				ToScore:     t.Score,
				RankChanged: p.Rank != t.Rank,
			})
		}
	}

	// Ranks, not slice positions, define the order.
	sort.SliceStable(exits, func(i, j int) bool { return exits[i].FromRank < exits[j].FromRank })
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ToRank < entries[j].ToRank })
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].ToRank < scores[j].ToRank })

	events := make([]ChangeEvent, 0, len(exits)+len(entries)+len(scores))
	events = append(events, exits...)
	events = append(events, entries...)
	return append(events, scores...)
}

// ContestEvents groups the events one contest produced for a target.
type ContestEvents struct {
	Contest string
	Events  []ChangeEvent
}

// DiffSet runs Diff for every contest of current, in display order, and returns
// only the contests that produced events.
func DiffSet(previous *leaderboard.SnapshotSet, current leaderboard.SnapshotSet, target string, opts Options) []ContestEvents {
	var out []ContestEvents
	for _, name := range current.Contests {
		events := Diff(previous.Contest(name), current.Snapshots[name], target, opts)
		if len(events) > 0 {
			out = append(out, ContestEvents{Contest: name, Events: events})
		}
	}
	return out
}
