package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/cli/render"
	"github.com/chainsmith/chasm/internal/domain"
)

var actionKinds = []string{
	string(domain.ActionWarp),
	string(domain.ActionRoll),
	string(domain.ActionSetBalance),
	string(domain.ActionSetNonce),
	string(domain.ActionSetCode),
	string(domain.ActionSetStorage),
	string(domain.ActionImpersonate),
	string(domain.ActionStopImpersonate),
}

// NewActionCmd creates the action command
func NewActionCmd() *cobra.Command {
	var spec domain.ActionSpec

	cmd := &cobra.Command{
		Use:   "action <kind>",
		Short: "Apply a cheat action to the local fork",
		Long: `Apply a cheat action to the local fork. A snapshot is taken first.

Kinds and their flags:
  warp              --timestamp
  roll              --blocks
  set-balance       --account --wei
  set-nonce         --account --nonce
  set-code          --account --code
  set-storage       --account --slot --value
  impersonate       --account
  stop-impersonate  --account

Examples:
  chasm --mode local action warp --timestamp 1735689600
  chasm --mode local action set-balance --account 0xf39F...2266 --wei 100ether`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: actionKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}

			spec.Kind = args[0]
			action, err := domain.ParseAction(spec)
			if err != nil {
				return err
			}

			snap, err := session.ApplyAction(cmd.Context(), action)
			if errors.Is(err, domain.ErrLocalModeOnly) {
				return fmt.Errorf("cheat actions only work on the fork; run with --mode local")
			}
			if err != nil {
				return err
			}

			if a.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), snap)
			}
			return render.NewResultRenderer(cmd.OutOrStdout()).RenderSnapshot(action, snap)
		},
	}

	cmd.Flags().StringVar(&spec.Account, "account", "", "Account the action touches")
	cmd.Flags().Uint64Var(&spec.Timestamp, "timestamp", 0, "Unix timestamp of the next block (warp)")
	cmd.Flags().Uint64Var(&spec.Blocks, "blocks", 0, "Number of blocks to mine (roll)")
	cmd.Flags().StringVar(&spec.Wei, "wei", "", "New balance in wei or with a unit (set-balance)")
	cmd.Flags().Uint64Var(&spec.Nonce, "nonce", 0, "New nonce (set-nonce)")
	cmd.Flags().StringVar(&spec.Code, "code", "", "New runtime code as hex (set-code)")
	cmd.Flags().StringVar(&spec.Slot, "slot", "", "Storage slot (set-storage)")
	cmd.Flags().StringVar(&spec.Value, "value", "", "Storage value (set-storage)")

	return cmd
}

// NewSnapshotsCmd creates the snapshots command
func NewSnapshotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"history"},
		Short:   "List the local snapshot history",
		Long: `List the snapshots taken in this session, oldest first. The arrow marks the
snapshot the fork was last reverted to or advanced past.

Snapshots live as long as the session, so this is most useful inside 'chasm console'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			if a.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), session.Snapshots())
			}
			return render.NewSnapshotsRenderer(cmd.OutOrStdout()).RenderSnapshots(session.Snapshots(), session.HeadID())
		},
	}
}

// NewRevertCmd creates the revert command
func NewRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert [snapshot]",
		Short: "Revert the fork to a snapshot",
		Long: `Revert the fork to the state before an earlier action. The snapshot is matched
by anvil id, local id (snap-3) or a fuzzy match on its action label. Without
an argument you pick from the history interactively.

Every snapshot after the target is dropped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var snap *domain.Snapshot
			if len(args) == 1 {
				snap, err = session.FindSnapshot(args[0])
			} else {
				snap, err = a.Selector.SelectSnapshot(ctx, session.Snapshots(), "Revert to")
			}
			if err != nil {
				return err
			}

			if err := session.RevertTo(ctx, snap.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("Reverted to %s (%s)", snap.LocalID, snap.Method)))
			return nil
		},
	}
}
