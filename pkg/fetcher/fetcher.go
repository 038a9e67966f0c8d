package fetcher

import (
	"context"
	"fmt"

	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

// Fetcher produces a validated snapshot of every tracked contest.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (leaderboard.SnapshotSet, error)
}

// FetchError is a network-level failure: connection errors, timeouts, bad status codes.
type FetchError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Error fetching the web: status code %d", e.StatusCode)
	}
	return fmt.Sprintf("Error fetching the web: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StructuralError means the page was fetched but did not have the expected shape.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "Error fetching the web: " + e.Reason
}
