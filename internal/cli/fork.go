package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/cli/render"
)

// NewForkCmd creates the fork command group with subcommands
func NewForkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fork",
		Short: "Manage the local fork",
		Long: `The local fork is an anvil node forked from the live endpoint. It runs in the
background (or inside 'chasm serve' when --service-url is set) and outlives
individual commands.`,
	}

	cmd.AddCommand(newForkStartCmd())
	cmd.AddCommand(newForkStopCmd())
	cmd.AddCommand(newForkStatusCmd())
	cmd.AddCommand(newForkLogsCmd())

	return cmd
}

// newForkStartCmd creates the fork start subcommand
func newForkStartCmd() *cobra.Command {
	var block uint64

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start (or reuse) a fork of the live endpoint",
		Long: `Start an anvil fork of the live endpoint. A fork that already runs from the
same source and block is reused. --block pins the fork; otherwise the
configured fork block (config set fork.block) or the latest block is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var pinned *uint64
			if cmd.Flags().Changed("block") {
				pinned = &block
			}

			endpoint, err := session.StartFork(ctx, pinned)
			if err != nil {
				return err
			}

			st := session.ForkStatus(ctx)
			if a.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), st)
			}
			return render.NewForkRenderer(cmd.OutOrStdout()).RenderStarted(endpoint, st)
		},
	}

	cmd.Flags().Uint64Var(&block, "block", 0, "Block number to fork at")

	return cmd
}

// newForkStopCmd creates the fork stop subcommand
func newForkStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the fork",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			session.StopFork(cmd.Context())
			return render.NewForkRenderer(cmd.OutOrStdout()).RenderStopped()
		},
	}
}

// newForkStatusCmd creates the fork status subcommand
func newForkStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a fork is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			st := session.ForkStatus(cmd.Context())
			if a.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), st)
			}
			return render.NewForkRenderer(cmd.OutOrStdout()).RenderStatus(st)
		},
	}
}

// newForkLogsCmd creates the fork logs subcommand
func newForkLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logs",
		Short:       "Follow the anvil log",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoTimeout: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			if a.Config.ServiceURL != "" {
				return fmt.Errorf("the fork runs in the service at %s; read its logs there", a.Config.ServiceURL)
			}
			if a.ForkBackend == nil {
				return errors.New("no fork backend configured")
			}
			return a.ForkBackend.Logs(cmd.Context(), cmd.OutOrStdout())
		},
	}
}
