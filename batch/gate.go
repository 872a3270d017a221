package batch

import (
	"context"

	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	"golang.org/x/sync/semaphore"
)

// Gate allows at most one batch to run against a store at a time. A caller
// that finds the gate held fails fast instead of queueing behind it.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the gate, or returns ErrBatchInProgress
func (g *Gate) Do(fn func() error) error {
	if !g.sem.TryAcquire(1) {
		return errs.ErrBatchInProgress
	}
	defer g.sem.Release(1)
	return fn()
}

// RefreshAll runs r.RefreshAll under the gate
func (g *Gate) RefreshAll(ctx context.Context, r *Refresher) (RefreshReport, error) {
	var report RefreshReport
	err := g.Do(func() error {
		var err error
		report, err = r.RefreshAll(ctx)
		return err
	})
	return report, err
}

// Enroll runs e.Enroll under the gate
func (g *Gate) Enroll(ctx context.Context, e *Enroller, target int, groupID string) (EnrollmentReport, error) {
	var report EnrollmentReport
	err := g.Do(func() error {
		var err error
		report, err = e.Enroll(ctx, target, groupID)
		return err
	})
	return report, err
}
