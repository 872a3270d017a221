package commands

import (
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-credential-pool/internal/config"
	"github.com/jrsteele09/go-credential-pool/progress"
	"github.com/spf13/cobra"
)

func newRefreshCmd(settings func() config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh every stored credential and rebuild the refreshed pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), settings())
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			report, err := a.gate.RefreshAll(cmd.Context(), a.refresher(out))
			if err != nil {
				return err
			}
			summary := progress.RefreshSummary(report)
			a.notifier.Notify(cmd.Context(), summary)
			fmt.Fprintln(out, summary)
			return nil
		},
	}
}

func newPullCmd(settings func() config.Settings) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "pull <amount>",
		Short: "Enroll up to <amount> subjects from the refreshed pool into a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil || amount < 1 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[0])
			}

			cfg := settings()
			if group == "" {
				group = cfg.GetDefaultGroupID()
			}
			if group == "" {
				return fmt.Errorf("a group is required: pass --group or set GROUP_ID")
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			report, err := a.gate.Enroll(cmd.Context(), a.enroller(out), amount, group)
			if err != nil {
				return err
			}
			summary := progress.EnrollmentSummary(report)
			a.notifier.Notify(cmd.Context(), summary)
			fmt.Fprintln(out, summary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "target group id (defaults to GROUP_ID)")
	return cmd
}

func newCountCmd(settings func() config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of credentials in the refreshed pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), settings())
			if err != nil {
				return err
			}
			defer a.close()

			pool, err := a.store.LoadRefreshedPool(cmd.Context())
			if err != nil {
				return err
			}
			if len(pool) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users authenticated yet.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total authenticated users: %d\n", len(pool))
			return nil
		},
	}
}

func newStatusCmd(settings func() config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the credential store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := settings()
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			primary, err := a.store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			pool, err := a.store.LoadRefreshedPool(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is online.\n", cfg.GetAppName())
			fmt.Fprintf(out, "store: %s  stored: %d  refreshed: %d\n", cfg.GetStoreDriver(), len(primary), len(pool))
			return nil
		},
	}
}
