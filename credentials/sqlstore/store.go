package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-credential-pool/credentials"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var _ credentials.Store = (*Store)(nil)

// Store keeps the primary store and the refreshed pool in two tables.
// Each replace runs inside one transaction and Commit rewrites both tables
// in the same transaction.
type Store struct {
	db *bun.DB
}

// Open connects with the configured driver ("sqlite3" or "postgres") and
// ensures the schema exists.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	driver := cfg.GetStoreDriver()
	dsn := cfg.GetStoreDSN()
	if dsn == "" {
		return nil, fmt.Errorf("[sqlstore Open] STORE_DSN is required for driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore Open] open %s: %w", driver, err))
	}

	var db *bun.DB
	switch driver {
	case config.StoreDriverSQLite:
		sqlDB.SetMaxOpenConns(1)
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	case config.StoreDriverPostgres:
		db = bun.NewDB(sqlDB, pgdialect.New())
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("[sqlstore Open] unsupported driver %q", driver)
	}

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing bun database and creates the tables if needed
func New(ctx context.Context, db *bun.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("[sqlstore New] db is required")
	}
	for _, model := range []any{(*primaryRow)(nil), (*refreshedRow)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return nil, errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore New] create table: %w", err))
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadAll(ctx context.Context) ([]credentials.Record, error) {
	var rows []primaryRow
	if err := s.db.NewSelect().Model(&rows).Order("position ASC").Scan(ctx); err != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore LoadAll] %w", err))
	}
	records := make([]credentials.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}

func (s *Store) LoadRefreshedPool(ctx context.Context) ([]credentials.Record, error) {
	var rows []refreshedRow
	if err := s.db.NewSelect().Model(&rows).Order("position ASC").Scan(ctx); err != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore LoadRefreshedPool] %w", err))
	}
	records := make([]credentials.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}

func (s *Store) ReplaceAll(ctx context.Context, records []credentials.Record) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return replacePrimary(ctx, tx, records)
	})
	if err != nil {
		return errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore ReplaceAll] %w", err))
	}
	return nil
}

func (s *Store) ReplaceRefreshedPool(ctx context.Context, records []credentials.Record) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return replaceRefreshed(ctx, tx, records)
	})
	if err != nil {
		return errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore ReplaceRefreshedPool] %w", err))
	}
	return nil
}

func (s *Store) Commit(ctx context.Context, primary, refreshed []credentials.Record) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := replacePrimary(ctx, tx, primary); err != nil {
			return err
		}
		return replaceRefreshed(ctx, tx, refreshed)
	})
	if err != nil {
		return errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore Commit] %w", err))
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, record credentials.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("[sqlstore Upsert] %w", err)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing primaryRow
		err := tx.NewSelect().Model(&existing).
			Where("subject_id = ?", record.SubjectID).
			Order("position ASC").
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			_, err = tx.NewUpdate().Model((*primaryRow)(nil)).
				Set("access_token = ?", record.AccessToken).
				Set("refresh_token = ?", record.RefreshToken).
				Where("position = ?", existing.Position).
				Exec(ctx)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		var next int
		if err := tx.NewSelect().Model((*primaryRow)(nil)).
			ColumnExpr("COALESCE(MAX(position), -1) + 1").
			Scan(ctx, &next); err != nil {
			return err
		}
		row := newPrimaryRow(next, record)
		_, err = tx.NewInsert().Model(&row).Exec(ctx)
		return err
	})
	if err != nil {
		return errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[sqlstore Upsert] %w", err))
	}
	return nil
}

func replacePrimary(ctx context.Context, tx bun.Tx, records []credentials.Record) error {
	if _, err := tx.NewDelete().Model((*primaryRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	rows := make([]primaryRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, newPrimaryRow(i, rec))
	}
	_, err := tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func replaceRefreshed(ctx context.Context, tx bun.Tx, records []credentials.Record) error {
	if _, err := tx.NewDelete().Model((*refreshedRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	rows := make([]refreshedRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, refreshedRow(newPrimaryRow(i, rec)))
	}
	_, err := tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}
