package leaderboard

import (
	"math"
	"testing"
	"time"
)

func TestContestValidate(t *testing.T) {
	tests := []struct {
		name    string
		teams   []TeamEntry
		wantErr bool
	}{
		{"empty", nil, false},
		{"contiguous", []TeamEntry{{Rank: 1, Name: "A"}, {Rank: 2, Name: "B"}}, false},
		{"gap", []TeamEntry{{Rank: 1, Name: "A"}, {Rank: 3, Name: "B"}}, true},
		{"starts at two", []TeamEntry{{Rank: 2, Name: "A"}}, true},
		{"duplicate name", []TeamEntry{{Rank: 1, Name: "A"}, {Rank: 2, Name: "A"}}, true},
		{"blank name", []TeamEntry{{Rank: 1, Name: "  "}}, true},
		{"nan score", []TeamEntry{{Rank: 1, Name: "A", Score: math.NaN()}}, true},
		{"infinite score", []TeamEntry{{Rank: 1, Name: "A", Score: math.Inf(1)}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ContestSnapshot{Name: "c", Teams: tc.teams}.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseScoreIsNumeric(t *testing.T) {
	// "9.5" > "10.25" lexicographically; numerically it is the other way round.
	a, err := ParseScore("9.5")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseScore(" 10.25 ")
	if err != nil {
		t.Fatal(err)
	}
	if !(b > a) {
		t.Fatalf("expected 10.25 > 9.5, got %v <= %v", b, a)
	}
	if v, err := ParseScore("1,024.5"); err != nil || v != 1024.5 {
		t.Fatalf("thousands separator: got %v, %v", v, err)
	}
	for _, raw := range []string{"n/a", "NaN", "Inf", "-Infinity", "1e400"} {
		if v, err := ParseScore(raw); err == nil {
			t.Fatalf("ParseScore(%q): expected error, got %v", raw, v)
		}
	}
}

func TestParseRank(t *testing.T) {
	if r, err := ParseRank("#3"); err != nil || r != 3 {
		t.Fatalf("got %d, %v", r, err)
	}
	if _, err := ParseRank("0"); err == nil {
		t.Fatal("expected error for rank 0")
	}
}

func TestCloneAndCanonicalName(t *testing.T) {
	set := NewSnapshotSet(time.Unix(0, 0), ContestSnapshot{Name: "c", Teams: []TeamEntry{{Rank: 1, Name: "K2IV", Score: 1}}})
	clone := set.Clone()
	clone.Snapshots["c"].Teams[0].Score = 99
	if set.Snapshots["c"].Teams[0].Score != 1 {
		t.Fatal("clone shares team slice with original")
	}
	if got := set.CanonicalTeamName(" k2iv "); got != "K2IV" {
		t.Fatalf("CanonicalTeamName = %q", got)
	}
	if got := set.CanonicalTeamName("nobody"); got != "nobody" {
		t.Fatalf("CanonicalTeamName = %q", got)
	}
	var nilSet *SnapshotSet
	if nilSet.Contest("c") != nil {
		t.Fatal("nil set must not return a contest")
	}
}
