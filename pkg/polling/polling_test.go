package polling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sw33tLie/rankbot/pkg/fetcher"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
	"github.com/sw33tLie/rankbot/pkg/metrics"
	"github.com/sw33tLie/rankbot/pkg/notify"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

var tracked = []string{"People Analytics", "Cash Ratio Optimization"}

type scriptedFetcher struct {
	results []fetchResult
	calls   int
}

type fetchResult struct {
	set leaderboard.SnapshotSet
	err error
}

func (f *scriptedFetcher) Name() string { return "scripted" }

func (f *scriptedFetcher) Fetch(context.Context) (leaderboard.SnapshotSet, error) {
	r := f.results[f.calls%len(f.results)]
	f.calls++
	return r.set, r.err
}

type recorder struct {
	mu   sync.Mutex
	msgs map[string][]render.Message
}

func (r *recorder) Deliver(_ context.Context, to notify.Recipient, msg render.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = make(map[string][]render.Message)
	}
	r.msgs[to.ID] = append(r.msgs[to.ID], msg)
	return nil
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[id])
}

func set(contests ...leaderboard.ContestSnapshot) leaderboard.SnapshotSet {
	return leaderboard.NewSnapshotSet(time.Unix(1700000000, 0), contests...)
}

func contest(name string, names ...string) leaderboard.ContestSnapshot {
	c := leaderboard.ContestSnapshot{Name: name}
	for i, n := range names {
		c.Teams = append(c.Teams, leaderboard.TeamEntry{Rank: i + 1, Name: n, Score: float64(100 - i)})
	}
	return c
}

type env struct {
	cfg      CycleConfig
	store    *storage.SnapshotStore
	registry *storage.Registry
	db       *storage.DB
	users    *recorder
	operator *recorder
}

func newEnv(t *testing.T, f fetcher.Fetcher) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.OpenSnapshotStore(filepath.Join(dir, "snapshot.json"), tracked)
	if err != nil {
		t.Fatal(err)
	}
	registry, err := storage.OpenRegistry(filepath.Join(dir, "subscribers.json"))
	if err != nil {
		t.Fatal(err)
	}
	db, err := storage.Open(filepath.Join(dir, "changes.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	users, operator := &recorder{}, &recorder{}
	reporter := &notify.OperatorReporter{Deliverer: operator, Operator: notify.Recipient{ID: "op"}}
	return &env{
		cfg: CycleConfig{
			Fetcher:    f,
			Store:      store,
			Registry:   registry,
			Dispatcher: notify.NewDispatcher(notify.Config{Deliverer: users, Reporter: reporter}),
			Reporter:   reporter,
			DB:         db,
		},
		store:    store,
		registry: registry,
		db:       db,
		users:    users,
		operator: operator,
	}
}

func TestRunCycleFirstRunThenChange(t *testing.T) {
	first := set(contest("People Analytics", "A", "B"), contest("Cash Ratio Optimization", "C", "D"))
	second := set(contest("People Analytics", "B", "A"), contest("Cash Ratio Optimization", "C", "D"))
	e := newEnv(t, &scriptedFetcher{results: []fetchResult{{set: first}, {set: second}}})

	if _, _, err := e.registry.GetOrCreate("u1", storage.ChannelDirect); err != nil {
		t.Fatal(err)
	}
	if _, err := e.registry.Subscribe("u1", storage.ChannelDirect, "A"); err != nil {
		t.Fatal(err)
	}

	res, err := RunCycle(context.Background(), e.cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsFirstRun || res.Previous != nil {
		t.Fatalf("expected first run, got %+v", res)
	}
	// top10 table plus A's first standing.
	if got := e.users.count("u1"); got != 2 {
		t.Fatalf("expected 2 messages on first run, got %d", got)
	}

	res, err = RunCycle(context.Background(), e.cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsFirstRun || res.Report.Sent != 2 {
		t.Fatalf("unexpected second cycle %+v", res.Report)
	}
	if got := e.store.Current(); got == nil || got.Snapshots["People Analytics"].Teams[0].Name != "B" {
		t.Fatalf("store not replaced: %#v", got)
	}

	changes, err := e.db.ListRecentChanges(context.Background(), "A", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) == 0 {
		t.Fatal("expected logged changes for A")
	}
	stats, err := e.db.GetDeliveryStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].Recipient != "u1" || stats[0].Sent != 4 {
		t.Fatalf("unexpected delivery stats %#v", stats)
	}
	if e.operator.count("op") != 0 {
		t.Fatal("no operator reports expected")
	}
}

func TestRunCycleMissingTableAborts(t *testing.T) {
	good := set(contest("People Analytics", "A", "B"), contest("Cash Ratio Optimization", "C", "D"))
	partial := set(contest("People Analytics", "B", "A"))
	e := newEnv(t, &scriptedFetcher{results: []fetchResult{{set: good}, {set: partial}}})
	if _, _, err := e.registry.GetOrCreate("u1", storage.ChannelDirect); err != nil {
		t.Fatal(err)
	}

	if _, err := RunCycle(context.Background(), e.cfg); err != nil {
		t.Fatal(err)
	}
	before := e.users.count("u1")

	_, err := RunCycle(context.Background(), e.cfg)
	var verr *storage.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if got := e.store.Current(); got.Snapshots["People Analytics"].Teams[0].Name != "A" || len(got.Contests) != 2 {
		t.Fatalf("snapshot must be unchanged, got %#v", got)
	}
	if got := e.operator.count("op"); got != 1 {
		t.Fatalf("expected exactly one operator report, got %d", got)
	}
	if got := e.users.count("u1"); got != before {
		t.Fatalf("no notifications expected, got %d new", got-before)
	}
}

func TestRunCyclePersistFailureCountedSeparately(t *testing.T) {
	good := set(contest("People Analytics", "A", "B"), contest("Cash Ratio Optimization", "C", "D"))
	e := newEnv(t, &scriptedFetcher{results: []fetchResult{{set: good}}})
	m := metrics.New()
	e.cfg.Metrics = m
	if _, _, err := e.registry.GetOrCreate("u1", storage.ChannelDirect); err != nil {
		t.Fatal(err)
	}

	// A directory where the snapshot file belongs makes the final rename fail.
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store, err := storage.OpenSnapshotStore(path, tracked)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}
	e.cfg.Store = store

	_, err = RunCycle(context.Background(), e.cfg)
	if err == nil {
		t.Fatal("expected a persistence error")
	}
	var verr *storage.ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("persistence failure must not look like a rejected snapshot: %v", err)
	}
	if store.Current() != nil {
		t.Fatal("store must stay empty")
	}
	if got := e.users.count("u1"); got != 0 {
		t.Fatalf("no notifications expected, got %d", got)
	}
	if got := e.operator.count("op"); got != 1 {
		t.Fatalf("expected exactly one operator report, got %d", got)
	}

	want := `
# HELP rankbot_cycles_total Diff cycles by result.
# TYPE rankbot_cycles_total counter
rankbot_cycles_total{result="persist_error"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "rankbot_cycles_total"); err != nil {
		t.Fatal(err)
	}
}

func TestRunCycleFetchErrorReportsOnce(t *testing.T) {
	fetchErr := &fetcher.StructuralError{Reason: "there should be 2 scoreboards, but found 1"}
	e := newEnv(t, &scriptedFetcher{results: []fetchResult{{err: fetchErr}}})

	_, err := RunCycle(context.Background(), e.cfg)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected the fetch error, got %v", err)
	}
	if e.store.Current() != nil {
		t.Fatal("store must stay empty")
	}
	if got := e.operator.count("op"); got != 1 {
		t.Fatalf("expected exactly one operator report, got %d", got)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	good := set(contest("People Analytics", "A"), contest("Cash Ratio Optimization", "C"))
	f := &scriptedFetcher{results: []fetchResult{{set: good}}}
	e := newEnv(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	e.cfg.OnCycleDone = func(*CycleResult) { cancel() }
	go func() { done <- Run(ctx, e.cfg, time.Hour) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if f.calls != 1 {
		t.Fatalf("expected one immediate cycle, got %d", f.calls)
	}
}

func TestRunRejectsBadInterval(t *testing.T) {
	if err := Run(context.Background(), CycleConfig{}, 0); err == nil {
		t.Fatal("expected an error")
	}
}
