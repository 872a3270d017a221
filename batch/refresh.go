package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-credential-pool/credentials"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
)

// RecordFailure is one record dropped by a refresh run
type RecordFailure struct {
	SubjectID string
	Err       error
}

// RefreshReport is the outcome of Refresher.RefreshAll.
// Succeeded+Failed always equals Total.
type RefreshReport struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Failures  []RecordFailure
	Elapsed   time.Duration
	// Empty is set when the primary store held no records; nothing was written.
	Empty bool
}

// Refresher exchanges the refresh token of every stored record and commits
// the survivors as both the new primary store and the new refreshed pool.
type Refresher struct {
	store    credentials.Store
	exchange TokenExchanger
	engine
}

func NewRefresher(store credentials.Store, exchange TokenExchanger, opts ...Option) *Refresher {
	return &Refresher{
		store:    store,
		exchange: exchange,
		engine:   newEngine(opts),
	}
}

// RefreshAll runs one refresh batch. Per-record failures drop the record and
// are counted; only a store read or commit failure (or cancellation) is
// returned as an error, and in that case the store is left untouched.
func (r *Refresher) RefreshAll(ctx context.Context) (RefreshReport, error) {
	run := newRun(KindRefresh, r.clock.Now())
	logger := r.logger.With().Str("run_id", run.ID).Str("kind", string(KindRefresh)).Logger()

	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return RefreshReport{RunID: run.ID}, fmt.Errorf("[Refresher RefreshAll] failed to load credentials: %w", err)
	}
	if len(records) == 0 {
		logger.Info().Msg("credential store is empty, nothing to refresh")
		return RefreshReport{RunID: run.ID, Empty: true, Elapsed: r.elapsed(run)}, nil
	}

	run.Total = len(records)
	logger.Info().Int("total", run.Total).Msg("refresh started")

	accepted := make([]credentials.Record, 0, len(records))
	failures := make([]RecordFailure, 0)
	cancelled := func(err error) (RefreshReport, error) {
		logger.Warn().Int("processed", run.Processed).Msg("refresh cancelled, store left untouched")
		return r.report(run, failures), fmt.Errorf("[Refresher RefreshAll] cancelled after %d of %d records: %w", run.Processed, run.Total, err)
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		next, err := r.refreshOne(ctx, rec)
		if err != nil && ctx.Err() != nil {
			// The call was cut short, so the record is neither refreshed nor failed.
			return cancelled(ctx.Err())
		}
		run.Processed++
		if err != nil {
			label := recordLabel(rec, i)
			run.Failed++
			run.pushRecent(label)
			failures = append(failures, RecordFailure{SubjectID: label, Err: err})
			logger.Warn().Err(err).Str("subject_id", label).Msg("refresh failed, dropping record")
		} else {
			run.Succeeded++
			accepted = append(accepted, next)
		}

		if run.Processed%progressEvery == 0 || run.Processed == run.Total {
			r.emit(ctx, run, run.Processed == run.Total)
		}
	}

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if err := r.store.Commit(ctx, accepted, accepted); err != nil {
		return r.report(run, failures), fmt.Errorf("[Refresher RefreshAll] failed to commit refreshed credentials: %w", err)
	}

	report := r.report(run, failures)
	logger.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("refresh complete")
	return report, nil
}

func (r *Refresher) refreshOne(ctx context.Context, rec credentials.Record) (credentials.Record, error) {
	if err := rec.Validate(); err != nil {
		return credentials.Record{}, err
	}

	pair, err := r.exchange.ExchangeRefreshToken(ctx, rec.RefreshToken)
	if err != nil {
		if errs.Is(err, errs.ErrExchangeFailure) {
			return credentials.Record{}, err
		}
		return credentials.Record{}, errs.Join(errs.ErrExchangeFailure, err)
	}
	if pair.AccessToken == "" {
		return credentials.Record{}, fmt.Errorf("%w: response carried no access token", errs.ErrExchangeFailure)
	}

	refreshToken := pair.RefreshToken
	if refreshToken == "" {
		// Providers may omit the refresh token when it was not rotated.
		refreshToken = rec.RefreshToken
	}
	return rec.WithTokens(pair.AccessToken, refreshToken), nil
}

func (r *Refresher) report(run *Run, failures []RecordFailure) RefreshReport {
	return RefreshReport{
		RunID:     run.ID,
		Total:     run.Total,
		Succeeded: run.Succeeded,
		Failed:    run.Failed,
		Failures:  failures,
		Elapsed:   r.elapsed(run),
	}
}

// recordLabel names a record in failure lists; damaged records may have no subject
func recordLabel(rec credentials.Record, index int) string {
	if rec.SubjectID != "" {
		return rec.SubjectID
	}
	return fmt.Sprintf("#%d", index+1)
}
