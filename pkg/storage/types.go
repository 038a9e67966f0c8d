package storage

import "time"

// EventRecord is one change event as written to the change log.
type EventRecord struct {
	Contest string
	Team    string
	Target  string // the subscription target the event was computed for
	Kind    string
	Detail  string // JSON encoding of the event
}

// DeliveryRecord is the outcome of one notification attempt.
type DeliveryRecord struct {
	Recipient string
	Target    string
	Success   bool
	Error     string
}

// Change is a logged change event read back for display.
type Change struct {
	OccurredAt time.Time
	CycleID    string
	Contest    string
	Team       string
	Target     string
	Kind       string
	Detail     string
}

// DeliveryStats aggregates delivery outcomes per recipient.
type DeliveryStats struct {
	Recipient string
	Sent      int
	Failed    int
	LastError string
}
