package batch

import (
	"context"
	"time"
)

const (
	// progressEvery is the snapshot cadence in processed items (refresh) or tries (enroll)
	progressEvery = 5
	// recentLimit bounds Run.Recent
	recentLimit = 10
)

type Kind string

const (
	KindRefresh Kind = "refresh"
	KindEnroll  Kind = "enroll"
)

// Snapshot is the state of an in-progress batch handed to a Reporter
type Snapshot struct {
	RunID     string
	Kind      Kind
	Elapsed   time.Duration
	Total     int // records in the store (refresh) or target count (enroll)
	Processed int // records processed (refresh) or tries (enroll)
	Succeeded int
	Failed    int
	Recent    []string
	Final     bool
}

// Remaining is the number of records not yet processed by a refresh run
func (s Snapshot) Remaining() int {
	if s.Kind == KindEnroll {
		return max(s.Total-s.Succeeded, 0)
	}
	return max(s.Total-s.Processed, 0)
}

// Reporter receives throttled snapshots synchronously from the batch loop.
// Implementations must return promptly and must not drop a Final snapshot.
type Reporter interface {
	Report(ctx context.Context, snapshot Snapshot)
}

type ReporterFunc func(ctx context.Context, snapshot Snapshot)

func (f ReporterFunc) Report(ctx context.Context, snapshot Snapshot) {
	f(ctx, snapshot)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, Snapshot) {}

// NopReporter discards every snapshot
var NopReporter Reporter = nopReporter{}
