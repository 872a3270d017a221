package batch

import (
	"time"

	"github.com/google/uuid"
)

// Run is the transient state of one batch invocation. It is owned by the
// engine call that created it and discarded after the final report.
type Run struct {
	ID        string
	Kind      Kind
	StartTime time.Time
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Recent    []string
}

func newRun(kind Kind, start time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartTime: start,
		Recent:    make([]string, 0, recentLimit),
	}
}

func (r *Run) pushRecent(item string) {
	if len(r.Recent) == recentLimit {
		copy(r.Recent, r.Recent[1:])
		r.Recent = r.Recent[:recentLimit-1]
	}
	r.Recent = append(r.Recent, item)
}

func (r *Run) snapshot(now time.Time, final bool) Snapshot {
	recent := make([]string, len(r.Recent))
	copy(recent, r.Recent)
	return Snapshot{
		RunID:     r.ID,
		Kind:      r.Kind,
		Elapsed:   now.Sub(r.StartTime),
		Total:     r.Total,
		Processed: r.Processed,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Recent:    recent,
		Final:     final,
	}
}
