package polling

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sw33tLie/rankbot/pkg/fetcher"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
	"github.com/sw33tLie/rankbot/pkg/metrics"
	"github.com/sw33tLie/rankbot/pkg/notify"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// CycleConfig holds everything RunCycle needs.
type CycleConfig struct {
	Fetcher    fetcher.Fetcher
	Store      *storage.SnapshotStore
	Registry   *storage.Registry
	Dispatcher *notify.Dispatcher
	Reporter   notify.Reporter  // optional; operator error reports
	DB         *storage.DB      // optional; change log
	Metrics    *metrics.Metrics // optional
	Log        Logger           // optional; nil = no logging

	// OnCycleDone is called after every successful cycle. Nil = no callback.
	OnCycleDone func(*CycleResult)
}

// CycleResult holds the outcome of one diff cycle.
type CycleResult struct {
	ID         string
	Previous   *leaderboard.SnapshotSet
	Current    leaderboard.SnapshotSet
	IsFirstRun bool
	Report     notify.Report
}

// RunCycle fetches the leaderboard, makes it current, and notifies subscribers of
// what changed. A fetch or validation failure aborts the cycle before anything is
// replaced, and is reported to the operator exactly once.
func RunCycle(ctx context.Context, cfg CycleConfig) (*CycleResult, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = notify.NopReporter{}
	}

	result := &CycleResult{ID: uuid.NewString()}
	log.Debugf("Starting cycle %s with %s fetcher", result.ID, cfg.Fetcher.Name())

	current, err := cfg.Fetcher.Fetch(ctx)
	if err != nil {
		cfg.Metrics.Cycle(metrics.CycleFetch)
		log.Errorf("Cycle %s: %v", result.ID, err)
		reporter.Report(ctx, err)
		return nil, err
	}

	previous, err := cfg.Store.Replace(current)
	if err != nil {
		var verr *storage.ValidationError
		if errors.As(err, &verr) {
			cfg.Metrics.Cycle(metrics.CycleRejected)
		} else {
			cfg.Metrics.Cycle(metrics.CyclePersist)
		}
		log.Errorf("Cycle %s: %v", result.ID, err)
		reporter.Report(ctx, err)
		return nil, err
	}
	cfg.Metrics.CycleSucceeded(current.ObservedAt)

	result.Previous = previous
	result.Current = current
	result.IsFirstRun = previous == nil
	if result.IsFirstRun {
		log.Infof("First observation of the leaderboard, sending the current standings...")
	}

	subscribers := cfg.Registry.List()
	cfg.Metrics.Subscribers(len(subscribers))
	result.Report = cfg.Dispatcher.Dispatch(ctx, previous, current, subscribers)
	log.Infof("Cycle %s: %d notifications sent, %d failed", result.ID, result.Report.Sent, result.Report.Failed)

	events, deliveries := changeLogRecords(result.Report)
	for _, e := range events {
		cfg.Metrics.Event(e.Kind)
	}
	if cfg.DB != nil {
		if err := cfg.DB.LogCycle(ctx, result.ID, events, deliveries); err != nil {
			log.Warnf("Could not log changes for cycle %s: %v", result.ID, err)
		}
	}

	if cfg.OnCycleDone != nil {
		cfg.OnCycleDone(result)
	}
	return result, nil
}

// Run executes a cycle immediately and then on every tick until ctx is done.
// Failed cycles are logged and retried on the next tick.
func Run(ctx context.Context, cfg CycleConfig, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := RunCycle(ctx, cfg); err != nil {
			log.Warnf("Cycle failed, retrying in %s", interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// changeLogRecords flattens a dispatch report for the change log.
func changeLogRecords(r notify.Report) ([]storage.EventRecord, []storage.DeliveryRecord) {
	targets := make([]string, 0, len(r.Events))
	for t := range r.Events {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var events []storage.EventRecord
	for _, target := range targets {
		for _, group := range r.Events[target] {
			for _, e := range group.Events {
				detail, _ := json.Marshal(e)
				events = append(events, storage.EventRecord{
					Contest: e.Contest,
					Team:    e.Team,
					Target:  target,
					Kind:    string(e.Kind),
					Detail:  string(detail),
				})
			}
		}
	}

	deliveries := make([]storage.DeliveryRecord, 0, len(r.Deliveries))
	for _, d := range r.Deliveries {
		rec := storage.DeliveryRecord{Recipient: d.Recipient.ID, Target: d.Target, Success: d.Err == nil}
		if d.Err != nil {
			rec.Error = d.Err.Error()
		}
		deliveries = append(deliveries, rec)
	}
	return events, deliveries
}
