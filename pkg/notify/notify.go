// Package notify maps change events onto subscribers and delivers one message per
// affected (subscriber, target) pair.
package notify

import (
	"context"
	"sort"

	"github.com/sw33tLie/rankbot/pkg/diff"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
	"github.com/sw33tLie/rankbot/pkg/metrics"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

// Recipient is a delivery address.
type Recipient struct {
	ID   string
	Kind storage.ChannelKind
}

// Deliverer sends a rendered message to one recipient.
type Deliverer interface {
	Deliver(ctx context.Context, to Recipient, msg render.Message) error
}

// Logger is the subset of a leveled logger the dispatcher writes to.
type Logger interface {
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Delivery is the outcome of one attempt.
type Delivery struct {
	Recipient Recipient
	Target    string
	Err       error
}

// Report summarises one Dispatch call.
type Report struct {
	Sent   int
	Failed int
	// Events holds the diff of every target that was evaluated, including
	// targets whose delivery failed.
	Events     map[string][]diff.ContestEvents
	Deliveries []Delivery
}

// Config holds the dispatcher's collaborators. Only Deliverer is required.
type Config struct {
	Deliverer Deliverer
	Reporter  Reporter
	Diff      diff.Options
	Log       Logger
	Metrics   *metrics.Metrics
}

type Dispatcher struct {
	cfg Config
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Log == nil {
		cfg.Log = nopLogger{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	return &Dispatcher{cfg: cfg}
}

// Dispatch diffs previous (nil on the first observation ever) against current for
// every target any subscriber follows and delivers the resulting messages. A
// failed delivery never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, previous *leaderboard.SnapshotSet, current leaderboard.SnapshotSet, subscribers []storage.Subscriber) Report {
	subs := append([]storage.Subscriber(nil), subscribers...)
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })

	report := Report{Events: make(map[string][]diff.ContestEvents)}
	rendered := make(map[string]*render.Message)

	for _, s := range subs {
		targets := append([]string(nil), s.Subscriptions...)
		sort.Strings(targets)

		for _, target := range targets {
			msg, ok := rendered[target]
			if !ok {
				msg = d.renderTarget(previous, current, target, &report)
				rendered[target] = msg
			}
			if msg == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				d.cfg.Log.Warnf("Dispatch interrupted: %v", err)
				return report
			}

			to := Recipient{ID: s.ID, Kind: s.ChannelKind}
			err := d.cfg.Deliverer.Deliver(ctx, to, *msg)
			report.Deliveries = append(report.Deliveries, Delivery{Recipient: to, Target: target, Err: err})
			d.cfg.Metrics.Delivery(err == nil)
			if err != nil {
				report.Failed++
				d.cfg.Log.Errorf("Could not notify %s about %s: %v", s.ID, target, err)
				d.cfg.Reporter.Report(ctx, err)
				continue
			}
			report.Sent++
			d.cfg.Log.Debugf("Notified %s about %s", s.ID, target)
		}
	}
	return report
}

// renderTarget returns nil when target is not affected.
func (d *Dispatcher) renderTarget(previous *leaderboard.SnapshotSet, current leaderboard.SnapshotSet, target string, report *Report) *render.Message {
	groups := diff.DiffSet(previous, current, target, d.cfg.Diff)
	if len(groups) > 0 {
		report.Events[target] = groups
	}

	if target == leaderboard.Top10 {
		if len(groups) == 0 && previous != nil {
			return nil
		}
		m := render.Top10(current, groups)
		return &m
	}
	if previous == nil {
		// First observation: every contest gets a line, "not found" included.
		m := render.TeamStanding(target, current)
		return &m
	}
	if len(groups) == 0 {
		return nil
	}
	m := render.TeamUpdate(target, groups, current)
	return &m
}
