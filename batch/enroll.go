package batch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jrsteele09/go-credential-pool/credentials"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
)

const (
	// budgetFactor caps total attempts per run at target * budgetFactor
	budgetFactor = 3
	// UnknownIdentity replaces a display name that could not be resolved
	UnknownIdentity = "Unknown"
)

// EnrollmentReport is the outcome of Enroller.Enroll
type EnrollmentReport struct {
	RunID           string
	GroupID         string
	Target          int
	Tries           int
	Added           int
	Failed          int
	RecentSuccesses []string
	// Remaining is the size of the working set when the loop stopped
	Remaining int
	Elapsed   time.Duration
}

// Budget is the maximum number of attempts a run may make
func (r EnrollmentReport) Budget() int {
	return r.Target * budgetFactor
}

// Enroller samples the refreshed pool without replacement and enrolls each
// sampled subject into a group until the target is met, the attempt budget
// is spent or the pool runs dry.
type Enroller struct {
	store  credentials.Store
	client GroupEnroller
	engine
}

func NewEnroller(store credentials.Store, client GroupEnroller, opts ...Option) *Enroller {
	return &Enroller{
		store:  store,
		client: client,
		engine: newEngine(opts),
	}
}

// Enroll runs one enrollment batch. Failed attempts are counted and never
// retried; the durable refreshed pool is not modified.
func (e *Enroller) Enroll(ctx context.Context, target int, groupID string) (EnrollmentReport, error) {
	if target < 1 || target > math.MaxInt/budgetFactor {
		return EnrollmentReport{Target: target, GroupID: groupID}, errs.Wrapf(errs.ErrInvalidTarget, "[Enroller Enroll] target %d", target)
	}

	run := newRun(KindEnroll, e.clock.Now())
	run.Total = target
	logger := e.logger.With().Str("run_id", run.ID).Str("kind", string(KindEnroll)).Str("group_id", groupID).Logger()

	working, err := e.store.LoadRefreshedPool(ctx)
	if err != nil {
		return e.report(run, groupID, 0), fmt.Errorf("[Enroller Enroll] failed to load refreshed pool: %w", err)
	}
	logger.Info().Int("target", target).Int("pool", len(working)).Msg("enrollment started")

	budget := target * budgetFactor
	emitted := false
	for run.Succeeded < target && run.Processed < budget && len(working) > 0 {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("tries", run.Processed).Msg("enrollment cancelled")
			return e.report(run, groupID, len(working)), fmt.Errorf("[Enroller Enroll] cancelled after %d tries: %w", run.Processed, err)
		}

		i := e.pick(len(working))
		rec := working[i]
		last := len(working) - 1
		working[i] = working[last]
		working = working[:last]
		run.Processed++

		err := e.enrollOne(ctx, groupID, rec)
		if err != nil && ctx.Err() != nil {
			logger.Warn().Int("tries", run.Processed).Msg("enrollment cancelled during an attempt")
			return e.report(run, groupID, len(working)), fmt.Errorf("[Enroller Enroll] cancelled after %d tries: %w", run.Processed, ctx.Err())
		}
		if err != nil {
			run.Failed++
			logger.Warn().Err(err).Str("subject_id", rec.SubjectID).Msg("enrollment failed")
		} else {
			run.Succeeded++
			run.pushRecent(fmt.Sprintf("%s (%s)", e.displayName(ctx, rec), rec.SubjectID))
		}

		done := run.Succeeded == target
		if run.Processed%progressEvery == 0 || done {
			e.emit(ctx, run, done)
			emitted = done
		}
	}

	if !emitted {
		e.emit(ctx, run, true)
	}

	report := e.report(run, groupID, len(working))
	logger.Info().
		Int("tries", report.Tries).
		Int("added", report.Added).
		Int("failed", report.Failed).
		Int("remaining", report.Remaining).
		Dur("elapsed", report.Elapsed).
		Msg("enrollment complete")
	return report, nil
}

func (e *Enroller) enrollOne(ctx context.Context, groupID string, rec credentials.Record) error {
	if rec.SubjectID == "" || rec.AccessToken == "" {
		return fmt.Errorf("%w: record has no subject or access token", errs.ErrUnparseableRecord)
	}
	ok, err := e.client.EnrollSubject(ctx, groupID, rec.SubjectID, rec.AccessToken)
	if err != nil {
		if errs.Is(err, errs.ErrEnrollmentFailure) {
			return err
		}
		return errs.Join(errs.ErrEnrollmentFailure, err)
	}
	if !ok {
		return errs.ErrEnrollmentFailure
	}
	return nil
}

// displayName is best effort; a lookup failure never affects the enrollment outcome
func (e *Enroller) displayName(ctx context.Context, rec credentials.Record) string {
	identity, err := e.client.LookupIdentity(ctx, rec.AccessToken)
	if err != nil || identity.DisplayName == "" {
		e.logger.Debug().Err(err).Str("subject_id", rec.SubjectID).Msg("identity lookup failed")
		return UnknownIdentity
	}
	return identity.DisplayName
}

func (e *Enroller) report(run *Run, groupID string, remaining int) EnrollmentReport {
	recent := make([]string, len(run.Recent))
	copy(recent, run.Recent)
	return EnrollmentReport{
		RunID:           run.ID,
		GroupID:         groupID,
		Target:          run.Total,
		Tries:           run.Processed,
		Added:           run.Succeeded,
		Failed:          run.Failed,
		RecentSuccesses: recent,
		Remaining:       remaining,
		Elapsed:         e.elapsed(run),
	}
}
