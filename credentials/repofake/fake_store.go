package credentialrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-credential-pool/credentials"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store. The error fields let tests
// simulate an unavailable medium; Writes counts successful mutations.
type FakeStore struct {
	primary   []credentials.Record
	refreshed []credentials.Record
	lock      sync.RWMutex

	LoadErr   error
	CommitErr error
	Writes    int
}

func NewFakeStore(primary ...credentials.Record) *FakeStore {
	return &FakeStore{
		primary: clone(primary),
	}
}

// SeedRefreshedPool replaces the refreshed pool without counting a write
func (fs *FakeStore) SeedRefreshedPool(records ...credentials.Record) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.refreshed = clone(records)
}

func (fs *FakeStore) Primary() []credentials.Record {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return clone(fs.primary)
}

func (fs *FakeStore) Refreshed() []credentials.Record {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return clone(fs.refreshed)
}

func (fs *FakeStore) LoadAll(_ context.Context) ([]credentials.Record, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.LoadErr != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fs.LoadErr)
	}
	return clone(fs.primary), nil
}

func (fs *FakeStore) ReplaceAll(_ context.Context, records []credentials.Record) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.CommitErr != nil {
		return errs.Join(errs.ErrStoreUnavailable, fs.CommitErr)
	}
	fs.primary = clone(records)
	fs.Writes++
	return nil
}

func (fs *FakeStore) LoadRefreshedPool(_ context.Context) ([]credentials.Record, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.LoadErr != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fs.LoadErr)
	}
	return clone(fs.refreshed), nil
}

func (fs *FakeStore) ReplaceRefreshedPool(_ context.Context, records []credentials.Record) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.CommitErr != nil {
		return errs.Join(errs.ErrStoreUnavailable, fs.CommitErr)
	}
	fs.refreshed = clone(records)
	fs.Writes++
	return nil
}

func (fs *FakeStore) Commit(_ context.Context, primary, refreshed []credentials.Record) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.CommitErr != nil {
		return errs.Join(errs.ErrStoreUnavailable, fs.CommitErr)
	}
	fs.primary = clone(primary)
	fs.refreshed = clone(refreshed)
	fs.Writes++
	return nil
}

func (fs *FakeStore) Upsert(_ context.Context, record credentials.Record) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.CommitErr != nil {
		return errs.Join(errs.ErrStoreUnavailable, fs.CommitErr)
	}
	fs.primary = credentials.Upsert(fs.primary, record)
	fs.Writes++
	return nil
}

func clone(records []credentials.Record) []credentials.Record {
	out := make([]credentials.Record, len(records))
	copy(out, records)
	return out
}
