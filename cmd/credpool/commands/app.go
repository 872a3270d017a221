package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/jrsteele09/go-credential-pool/credentials"
	"github.com/jrsteele09/go-credential-pool/credentials/filestore"
	"github.com/jrsteele09/go-credential-pool/credentials/sqlstore"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	"github.com/jrsteele09/go-credential-pool/notify"
	"github.com/jrsteele09/go-credential-pool/progress"
	"github.com/jrsteele09/go-credential-pool/provider"
	"github.com/rs/zerolog/log"
)

// app holds the collaborators shared by the subcommands
type app struct {
	cfg      config.Settings
	store    credentials.Store
	provider *provider.Client
	notifier notify.Notifier
	gate     *batch.Gate
	close    func() error
}

func newApp(ctx context.Context, cfg config.Settings) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Nop
	if urls := cfg.GetWebhookURLs(); len(urls) > 0 {
		notifier = notify.NewWebhook(urls, notify.WithLogger(log.Logger))
	}

	return &app{
		cfg:      cfg,
		store:    store,
		provider: provider.New(cfg, provider.WithLogger(log.Logger)),
		notifier: notifier,
		gate:     batch.NewGate(),
		close:    closeStore,
	}, nil
}

// openStore picks the backend from STORE_DRIVER
func openStore(ctx context.Context, cfg config.Settings) (credentials.Store, func() error, error) {
	switch driver := cfg.GetStoreDriver(); driver {
	case config.StoreDriverFile:
		store, err := filestore.NewFromConfig(cfg, filestore.WithLogger(log.Logger))
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case config.StoreDriverSQLite, config.StoreDriverPostgres:
		store, err := sqlstore.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("[openStore] unknown STORE_DRIVER %q", driver)
	}
}

// batchOptions reports progress to the log and, when out is set, as text lines
func (a *app) batchOptions(out io.Writer) []batch.Option {
	reporters := progress.Multi{progress.NewLogReporter(log.Logger)}
	if out != nil {
		reporters = append(reporters, progress.NewTextReporter(out))
	}
	return []batch.Option{
		batch.WithReporter(reporters),
		batch.WithLogger(log.Logger),
		batch.WithYield(a.cfg.GetProgressYield()),
	}
}

func (a *app) refresher(out io.Writer) *batch.Refresher {
	return batch.NewRefresher(a.store, a.provider, a.batchOptions(out)...)
}

func (a *app) enroller(out io.Writer) *batch.Enroller {
	return batch.NewEnroller(a.store, a.provider, a.batchOptions(out)...)
}
