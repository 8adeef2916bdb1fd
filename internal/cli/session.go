package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/cli/render"
	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// NewTraceCmd creates the trace command
func NewTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace [tx-hash]",
		Short: "Trace a transaction, or the last execution",
		Long: `Trace a mined transaction with cast run against the current mode's network.

Without a hash, traces the most recent execution of the session, including
failed ones; reads and unmined transactions are re-run as a traced call.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var trace *domain.Trace
			if len(args) == 0 {
				trace, err = session.TraceLast(ctx)
			} else {
				raw := args[0]
				if len(raw) != 66 || raw[:2] != "0x" {
					return fmt.Errorf("invalid transaction hash %q", raw)
				}
				hash := common.HexToHash(raw)
				pair, _, clientErr := session.Clients(ctx)
				if clientErr != nil {
					return clientErr
				}
				trace, err = session.Trace(ctx, usecase.TraceParams{Hash: &hash, Endpoint: pair.Endpoint})
			}
			if err != nil {
				return err
			}

			if a.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), trace)
			}
			return render.NewResultRenderer(cmd.OutOrStdout()).RenderTrace(trace)
		},
	}
}

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the mode, endpoints and fork state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			st := session.Status(cmd.Context())
			if a.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), st)
			}
			return render.RenderStatus(cmd.OutOrStdout(), st)
		},
	}
}

// NewModeCmd creates the mode command
func NewModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [live|local]",
		Short: "Show or switch the mode",
		Long: `Without an argument, print the current mode. With one, switch the session to it
and remember it in .chasm/config.local.json.

Switching to local mode does not start a fork; the first local request does.
Leaving local mode keeps the fork and its snapshots.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"live", "local"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				fmt.Fprintln(out, render.ModeBadge(session.Mode()))
				return nil
			}

			mode, err := domain.ParseMode(args[0])
			if err != nil {
				return err
			}
			if err := session.SetMode(mode); err != nil {
				return err
			}
			if _, err := a.SetConfig.Run(cmd.Context(), usecase.SetConfigParams{Key: "mode", Value: mode.String()}); err != nil {
				a.Logger.Warn("could not remember mode", "error", err)
			}
			fmt.Fprintf(out, "Switched to %s\n", render.ModeBadge(mode))
			return nil
		},
	}
}
