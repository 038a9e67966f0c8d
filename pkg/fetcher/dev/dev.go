package dev

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

// This is used for exercising the diff and notification flow without a live
// dashboard. Every Fetch returns the next of a fixed series of leaderboards.

type Fetcher struct {
	mu       sync.Mutex
	contests []string
	round    int
}

func New(contests []string) *Fetcher {
	if len(contests) == 0 {
		contests = []string{"People Analytics", "Cash Ratio Optimization"}
	}
	return &Fetcher{contests: contests}
}

func (f *Fetcher) Name() string { return "dev" }

func (f *Fetcher) Fetch(ctx context.Context) (leaderboard.SnapshotSet, error) {
	if err := ctx.Err(); err != nil {
		return leaderboard.SnapshotSet{}, err
	}
	f.mu.Lock()
	round := f.round
	f.round++
	f.mu.Unlock()

	snapshots := make([]leaderboard.ContestSnapshot, 0, len(f.contests))
	for i, c := range f.contests {
		snapshots = append(snapshots, leaderboard.ContestSnapshot{Name: c, Teams: board(round, i)})
	}
	return leaderboard.NewSnapshotSet(time.Now().UTC(), snapshots...), nil
}

// board produces 12 teams. Each round, "K2IV" climbs one place and gains score,
// and team-11 and team-12 swap in and out of the top 10.
func board(round, contest int) []leaderboard.TeamEntry {
	names := make([]string, 0, 12)
	for i := 1; i <= 11; i++ {
		names = append(names, fmt.Sprintf("team-%02d", i))
	}
	ourPos := 8 - round%8 // 8, 7, ..., 1, then back to 8
	names = append(names[:ourPos], append([]string{"K2IV"}, names[ourPos:]...)...)
	if round%2 == 1 {
		names[9], names[10] = names[10], names[9]
	}

	teams := make([]leaderboard.TeamEntry, 0, len(names))
	for i, n := range names {
		teams = append(teams, leaderboard.TeamEntry{
			Rank:        i + 1,
			Name:        n,
			Score:       float64(1000-i*10-contest) / 1000,
			SubmittedAt: fmt.Sprintf("2021-01-%02d 12:00", 10+round%20),
		})
	}
	return teams
}
