package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-credential-pool/intake"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(settings func() config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization intake server and admin batch endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := settings()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			// Batches triggered over HTTP only report to the log.
			handler, err := intake.New(cfg, intake.Deps{
				Store:     a.store,
				Provider:  a.provider,
				Notifier:  a.notifier,
				Refresher: a.refresher(nil),
				Enroller:  a.enroller(nil),
				Gate:      a.gate,
			})
			if err != nil {
				return err
			}

			displayAppname(cmd, cfg.GetAppName())
			server := &http.Server{
				Addr:              cfg.GetPort(),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return listenAndServe(server)
			})
			g.Go(func() error {
				<-gctx.Done()
				return shutdown(server)
			})
			if err := g.Wait(); err != nil {
				return err
			}
			log.Info().Msg("Server stopped")
			return nil
		},
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(cmd *cobra.Command, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(cmd.OutOrStdout(), myFigure.String())
}
