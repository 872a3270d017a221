package batch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/jrsteele09/go-credential-pool/credentials"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestRefreshAll_TenRecordsThreeFail(t *testing.T) {
	original := makeRecords(10)
	f := setupTestFixture(t, original)
	f.api.failRefresh["r2"] = true
	f.api.failRefresh["r5"] = true
	f.api.failRefresh["r9"] = true

	report, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, report.Total)
	require.Equal(t, 7, report.Succeeded)
	require.Equal(t, 3, report.Failed)
	require.Equal(t, report.Total, report.Succeeded+report.Failed)
	require.False(t, report.Empty)
	require.NotEmpty(t, report.RunID)

	failed := make([]string, 0, len(report.Failures))
	for _, failure := range report.Failures {
		require.ErrorIs(t, failure.Err, errs.ErrExchangeFailure)
		failed = append(failed, failure.SubjectID)
	}
	require.Equal(t, []string{"u2", "u5", "u9"}, failed)

	primary := f.store.Primary()
	require.Len(t, primary, 7)
	require.Equal(t, primary, f.store.Refreshed())
	require.Equal(t, 1, f.store.Writes, "primary and refreshed pool are committed together")

	before := map[string]credentials.Record{}
	for _, rec := range original {
		before[rec.SubjectID] = rec
	}
	for _, rec := range primary {
		old := before[rec.SubjectID]
		require.NotEqual(t, old.AccessToken, rec.AccessToken)
		require.NotEqual(t, old.RefreshToken, rec.RefreshToken)
		require.Equal(t, "fresh-"+old.RefreshToken, rec.AccessToken)
	}
}

func TestRefreshAll_PreservesOrder(t *testing.T) {
	f := setupTestFixture(t, makeRecords(4))
	f.api.failRefresh["r3"] = true

	_, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2", "r3", "r4"}, f.api.Exchanged())

	ids := []string{}
	for _, rec := range f.store.Primary() {
		ids = append(ids, rec.SubjectID)
	}
	require.Equal(t, []string{"u1", "u2", "u4"}, ids)
}

func TestRefreshAll_EmptyStore(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.store.SeedRefreshedPool(makeRecords(2)...)

	report, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)
	require.True(t, report.Empty)
	require.Zero(t, report.Total)
	require.Zero(t, report.Succeeded)
	require.Zero(t, report.Failed)

	require.Zero(t, f.store.Writes, "an empty run writes nothing")
	require.Len(t, f.store.Refreshed(), 2)
	require.Empty(t, f.reporter.Snapshots())
}

func TestRefreshAll_AllFailCommitsEmpty(t *testing.T) {
	f := setupTestFixture(t, makeRecords(2))
	f.api.failRefresh["r1"] = true
	f.api.failRefresh["r2"] = true

	report, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)
	require.False(t, report.Empty)
	require.Equal(t, 2, report.Failed)
	require.Empty(t, f.store.Primary())
	require.Empty(t, f.store.Refreshed())
	require.Equal(t, 1, f.store.Writes)
}

func TestRefreshAll_StoreFailures(t *testing.T) {
	t.Run("load failure is fatal", func(t *testing.T) {
		f := setupTestFixture(t, makeRecords(3))
		f.store.LoadErr = errors.New("disk gone")

		_, err := f.refresher().RefreshAll(context.Background())
		require.ErrorIs(t, err, errs.ErrStoreUnavailable)
		require.Empty(t, f.api.Exchanged())
		require.Zero(t, f.store.Writes)
	})

	t.Run("commit failure is fatal and leaves the store untouched", func(t *testing.T) {
		original := makeRecords(3)
		f := setupTestFixture(t, original)
		f.store.SeedRefreshedPool(original[:1]...)
		f.store.CommitErr = errors.New("read-only")

		report, err := f.refresher().RefreshAll(context.Background())
		require.ErrorIs(t, err, errs.ErrStoreUnavailable)
		require.Equal(t, 3, report.Succeeded, "the partial report is still returned")
		require.Equal(t, original, f.store.Primary())
		require.Equal(t, original[:1], f.store.Refreshed())
	})
}

func TestRefreshAll_UnparseableRecord(t *testing.T) {
	records := makeRecords(3)
	records[1] = credentials.Record{}
	records[2].RefreshToken = ""
	f := setupTestFixture(t, records)

	report, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 2, report.Failed)
	require.Len(t, report.Failures, 2)

	require.Equal(t, "#2", report.Failures[0].SubjectID)
	require.ErrorIs(t, report.Failures[0].Err, errs.ErrUnparseableRecord)
	require.Equal(t, "u3", report.Failures[1].SubjectID)
	require.ErrorIs(t, report.Failures[1].Err, errs.ErrUnparseableRecord)

	require.Equal(t, []string{"r1"}, f.api.Exchanged(), "unparseable records never reach the provider")
}

func TestRefreshAll_ExchangeResponseShapes(t *testing.T) {
	f := setupTestFixture(t, makeRecords(2))
	f.api.emptyRefresh["r1"] = true
	f.api.emptyAccess["r2"] = true

	report, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.ErrorIs(t, report.Failures[0].Err, errs.ErrExchangeFailure)

	primary := f.store.Primary()
	require.Equal(t, []credentials.Record{{SubjectID: "u1", AccessToken: "fresh-r1", RefreshToken: "r1"}}, primary,
		"an unrotated refresh token is kept")
}

func TestRefreshAll_ProgressCadence(t *testing.T) {
	f := setupTestFixture(t, makeRecords(12))
	f.api.failRefresh["r11"] = true

	_, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)

	snapshots := f.reporter.Snapshots()
	require.Len(t, snapshots, 3)
	require.Equal(t, []int{5, 10, 12}, []int{snapshots[0].Processed, snapshots[1].Processed, snapshots[2].Processed})
	require.False(t, snapshots[0].Final)
	require.False(t, snapshots[1].Final)

	last := snapshots[2]
	require.True(t, last.Final)
	require.Equal(t, batch.KindRefresh, last.Kind)
	require.Equal(t, 12, last.Total)
	require.Equal(t, 11, last.Succeeded)
	require.Equal(t, 1, last.Failed)
	require.Zero(t, last.Remaining())
	require.Equal(t, []string{"u11"}, last.Recent)

	for _, s := range snapshots {
		require.Equal(t, snapshots[0].RunID, s.RunID)
	}
}

func TestRefreshAll_ExactMultipleEmitsOneFinal(t *testing.T) {
	f := setupTestFixture(t, makeRecords(10))

	_, err := f.refresher().RefreshAll(context.Background())
	require.NoError(t, err)

	snapshots := f.reporter.Snapshots()
	require.Len(t, snapshots, 2)
	require.False(t, snapshots[0].Final)
	require.True(t, snapshots[1].Final)
	require.Equal(t, 10, snapshots[1].Processed)
}

func TestRefreshAll_Cancellation(t *testing.T) {
	original := makeRecords(8)
	f := setupTestFixture(t, original)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.api.onCall = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	report, err := f.refresher().RefreshAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, report.Succeeded+report.Failed, "the in-flight record completes before stopping")
	require.Len(t, f.api.Exchanged(), 3)
	require.Zero(t, f.store.Writes)
	require.Equal(t, original, f.store.Primary())
}

func TestRefreshAll_CancelledDuringLastRecordDoesNotCommit(t *testing.T) {
	tests := []struct {
		name      string
		honourCtx bool
		processed int
	}{
		{name: "call aborted", honourCtx: true, processed: 2},
		{name: "call completed", honourCtx: false, processed: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			original := makeRecords(3)
			f := setupTestFixture(t, original)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.api.honourCtx = tc.honourCtx
			f.api.onCall = func(n int) {
				if n == 3 {
					cancel()
				}
			}

			report, err := f.refresher().RefreshAll(ctx)
			require.ErrorIs(t, err, context.Canceled)
			require.Equal(t, tc.processed, report.Succeeded+report.Failed)
			require.Empty(t, report.Failures, "an aborted call is not a record failure")
			require.Zero(t, f.store.Writes)
			require.Equal(t, original, f.store.Primary())
		})
	}
}

func TestRefreshAll_ElapsedUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := setupTestFixture(t, makeRecords(4))
	f.api.onCall = func(int) { clock.Advance(time.Second) }

	report, err := f.refresher(batch.WithClock(clock)).RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4*time.Second, report.Elapsed)

	snapshots := f.reporter.Snapshots()
	require.Len(t, snapshots, 1)
	require.Equal(t, 4*time.Second, snapshots[0].Elapsed)
}

func TestRefreshAll_YieldsAfterEmission(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := setupTestFixture(t, makeRecords(5))
	refresher := f.refresher(batch.WithClock(clock), batch.WithYield(time.Second))

	type result struct {
		report batch.RefreshReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := refresher.RefreshAll(context.Background())
		done <- result{report, err}
	}()

	clock.BlockUntil(1)
	select {
	case <-done:
		t.Fatal("run finished before the yield elapsed")
	default:
	}
	require.Zero(t, f.store.Writes)

	clock.Advance(time.Second)
	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Equal(t, 5, res.report.Succeeded)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not resume after the yield")
	}
	require.Equal(t, 1, f.store.Writes)
}
