package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the append-only change log. It is history for humans and is never read
// back by the diff engine.
type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS change_events (
  id          INTEGER PRIMARY KEY,
  cycle_id    TEXT NOT NULL,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  contest     TEXT NOT NULL,
  team        TEXT NOT NULL,
  target      TEXT NOT NULL,
  kind        TEXT NOT NULL,
  detail      TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_time ON change_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_team ON change_events(team, occurred_at);
CREATE TABLE IF NOT EXISTS deliveries (
  id          INTEGER PRIMARY KEY,
  cycle_id    TEXT NOT NULL,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  recipient   TEXT NOT NULL,
  target      TEXT NOT NULL,
  success     INTEGER NOT NULL CHECK (success IN (0,1)),
  error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_deliveries_recipient ON deliveries(recipient, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// LogCycle writes the events and delivery outcomes of one diff cycle in a single transaction.
func (d *DB) LogCycle(ctx context.Context, cycleID string, events []EventRecord, deliveries []DeliveryRecord) (err error) {
	if len(events) == 0 && len(deliveries) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, e := range events {
		_, err = tx.ExecContext(ctx, `INSERT INTO change_events(cycle_id, occurred_at, contest, team, target, kind, detail) VALUES(?,CURRENT_TIMESTAMP,?,?,?,?,?)`,
			cycleID, e.Contest, e.Team, e.Target, e.Kind, nullIfEmpty(e.Detail))
		if err != nil {
			return err
		}
	}
	for _, dl := range deliveries {
		_, err = tx.ExecContext(ctx, `INSERT INTO deliveries(cycle_id, occurred_at, recipient, target, success, error) VALUES(?,CURRENT_TIMESTAMP,?,?,?,?)`,
			cycleID, dl.Recipient, dl.Target, boolToInt(dl.Success), nullIfEmpty(dl.Error))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRecentChanges returns the most recent N change events, optionally for one team.
func (d *DB) ListRecentChanges(ctx context.Context, team string, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, cycle_id, contest, team, target, kind, detail FROM change_events"
	args := []interface{}{}
	if team != "" {
		q += " WHERE team = ?"
		args = append(args, team)
	}
	q += " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAtStr string
		var detail sql.NullString
		if err := rows.Scan(&occurredAtStr, &c.CycleID, &c.Contest, &c.Team, &c.Target, &c.Kind, &detail); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTimestamp(occurredAtStr)
		c.Detail = detail.String
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// GetDeliveryStats aggregates delivery outcomes per recipient.
func (d *DB) GetDeliveryStats(ctx context.Context) ([]DeliveryStats, error) {
	query := `
		SELECT
			recipient,
			SUM(success),
			SUM(1 - success),
			COALESCE((SELECT error FROM deliveries d2 WHERE d2.recipient = d1.recipient AND d2.success = 0 ORDER BY d2.id DESC LIMIT 1), '')
		FROM
			deliveries d1
		GROUP BY
			recipient
		ORDER BY
			recipient;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DeliveryStats
	for rows.Next() {
		var s DeliveryStats
		if err := rows.Scan(&s.Recipient, &s.Sent, &s.Failed, &s.LastError); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Parse SQLite CURRENT_TIMESTAMP format, then RFC3339.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
