package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/jrsteele09/go-credential-pool/credentials"
	credentialrepofake "github.com/jrsteele09/go-credential-pool/credentials/repofake"
	"github.com/rs/zerolog"
)

var errRemote = errors.New("remote rejected the call")

// fakeAPI is a scripted batch.APIClient
type fakeAPI struct {
	mu sync.Mutex

	failRefresh  map[string]bool // keyed by refresh token
	emptyRefresh map[string]bool // exchange returns no refresh token
	emptyAccess  map[string]bool // exchange returns no access token
	failEnroll   map[string]bool // keyed by subject id
	rejectEnroll map[string]bool // enroll returns false without an error
	failLookup   bool
	// honourCtx makes calls return ctx.Err() once the context is done
	honourCtx bool

	exchanged []string
	attempted []string
	onCall    func(n int)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		failRefresh:  map[string]bool{},
		emptyRefresh: map[string]bool{},
		emptyAccess:  map[string]bool{},
		failEnroll:   map[string]bool{},
		rejectEnroll: map[string]bool{},
	}
}

func (f *fakeAPI) ExchangeRefreshToken(ctx context.Context, refreshToken string) (batch.TokenPair, error) {
	f.mu.Lock()
	f.exchanged = append(f.exchanged, refreshToken)
	n := len(f.exchanged)
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall(n)
	}
	if f.honourCtx && ctx.Err() != nil {
		return batch.TokenPair{}, ctx.Err()
	}

	if f.failRefresh[refreshToken] {
		return batch.TokenPair{}, errRemote
	}
	pair := batch.TokenPair{AccessToken: "fresh-" + refreshToken, RefreshToken: refreshToken + "-next"}
	if f.emptyRefresh[refreshToken] {
		pair.RefreshToken = ""
	}
	if f.emptyAccess[refreshToken] {
		pair.AccessToken = ""
	}
	return pair, nil
}

func (f *fakeAPI) EnrollSubject(ctx context.Context, _, subjectID, _ string) (bool, error) {
	f.mu.Lock()
	f.attempted = append(f.attempted, subjectID)
	n := len(f.attempted)
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall(n)
	}
	if f.honourCtx && ctx.Err() != nil {
		return false, ctx.Err()
	}

	if f.failEnroll[subjectID] {
		return false, errRemote
	}
	if f.rejectEnroll[subjectID] {
		return false, nil
	}
	return true, nil
}

func (f *fakeAPI) LookupIdentity(_ context.Context, accessToken string) (batch.Identity, error) {
	if f.failLookup {
		return batch.Identity{}, errRemote
	}
	return batch.Identity{DisplayName: "name-" + accessToken}, nil
}

func (f *fakeAPI) Attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempted...)
}

func (f *fakeAPI) Exchanged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.exchanged...)
}

// recorder collects snapshots handed to the reporter
type recorder struct {
	mu        sync.Mutex
	snapshots []batch.Snapshot
}

func (r *recorder) Report(_ context.Context, s batch.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) Snapshots() []batch.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batch.Snapshot(nil), r.snapshots...)
}

func makeRecords(n int) []credentials.Record {
	out := make([]credentials.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, credentials.Record{
			SubjectID:    fmt.Sprintf("u%d", i),
			AccessToken:  fmt.Sprintf("a%d", i),
			RefreshToken: fmt.Sprintf("r%d", i),
		})
	}
	return out
}

type testFixture struct {
	store    *credentialrepofake.FakeStore
	api      *fakeAPI
	reporter *recorder
}

func setupTestFixture(t *testing.T, primary []credentials.Record) *testFixture {
	t.Helper()
	return &testFixture{
		store:    credentialrepofake.NewFakeStore(primary...),
		api:      newFakeAPI(),
		reporter: &recorder{},
	}
}

// options returns the engine options every test shares; extra options win
func (f *testFixture) options(extra ...batch.Option) []batch.Option {
	opts := []batch.Option{
		batch.WithReporter(f.reporter),
		batch.WithLogger(zerolog.Nop()),
		batch.WithYield(0),
	}
	return append(opts, extra...)
}

func (f *testFixture) refresher(extra ...batch.Option) *batch.Refresher {
	return batch.NewRefresher(f.store, f.api, f.options(extra...)...)
}

func (f *testFixture) enroller(extra ...batch.Option) *batch.Enroller {
	return batch.NewEnroller(f.store, f.api, f.options(extra...)...)
}
