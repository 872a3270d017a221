package credentials

import "context"

// Store persists two ordered collections of records: the primary store (all
// known credentials, freshness unknown) and the refreshed pool (credentials
// known fresh as of the last refresh batch).
//
// Load operations return an empty slice when nothing has been stored yet.
// Every failure of the backing medium wraps errors.ErrStoreUnavailable.
// Replace operations are atomic: a concurrent reader sees either the old or
// the new contents, never a partial write.
type Store interface {
	LoadAll(ctx context.Context) ([]Record, error)
	ReplaceAll(ctx context.Context, records []Record) error

	LoadRefreshedPool(ctx context.Context) ([]Record, error)
	ReplaceRefreshedPool(ctx context.Context, records []Record) error

	// Commit rewrites the primary store and the refreshed pool as one step.
	// On error neither collection has changed.
	Commit(ctx context.Context, primary, refreshed []Record) error

	// Upsert adds a newly authorized record to the primary store, replacing
	// an existing record for the same subject.
	Upsert(ctx context.Context, record Record) error
}
