package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/go-credential-pool/internal/config"
	"github.com/jrsteele09/go-credential-pool/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds the command tree and runs it until completion or a stop signal
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd(config.Load)
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Err(err).Msg("command failed")
		return err
	}
	return nil
}

// NewRootCmd wires every subcommand. loadConfig is called once before any
// subcommand runs.
func NewRootCmd(loadConfig func() (config.Settings, error)) *cobra.Command {
	var cfg config.Settings

	root := &cobra.Command{
		Use:   "credpool",
		Short: "Credential pool lifecycle and batch operations",
		Long: `credpool keeps a pool of OAuth2 credentials obtained through an
authorization-code intake, refreshes them in batches and enrolls their
owners into a target group.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = loaded
			logging.Setup(cfg.GetEnv(), cfg.GetLogLevel())
			return nil
		},
	}

	settings := func() config.Settings { return cfg }
	root.AddCommand(
		newServeCmd(settings),
		newRefreshCmd(settings),
		newPullCmd(settings),
		newCountCmd(settings),
		newStatusCmd(settings),
	)
	return root
}
