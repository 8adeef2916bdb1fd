package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/cli/render"
	"github.com/chainsmith/chasm/internal/usecase"
)

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a plan of calls, cheat actions and reverts",
		Long: `Run the steps of a YAML plan in order against one session, so snapshots taken
by earlier steps can be reverted to by later ones.

Plan format:
  name: drain and rewind
  mode: local            # optional; --mode overrides it
  fork_block: 19000000   # optional; starts a fork pinned to this block
  steps:
    - name: fund
      action: {kind: set-balance, account: "0xf39F...", wei: 10ether}
    - name: drain
      call:
        to: "0xA0b8..."
        sig: "withdraw(uint256)"
        args: ["1000"]
      expect: revert       # success (default) or revert
      trace: true
    - name: rewind
      revert: fund         # snapshot id, snap-N, or fuzzy label

The run stops at the first failing step unless --keep-going is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}

			plan, err := usecase.LoadPlan(args[0])
			if err != nil {
				return err
			}

			params := usecase.RunPlanParams{KeepGoing: keepGoing}
			if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
				params.Mode = a.Config.Mode
			}

			result, err := usecase.NewRunPlan(session, a.Progress, a.Logger).Run(cmd.Context(), plan, params)
			if err != nil {
				return err
			}

			if a.Config.JSON {
				if err := render.RenderJSON(cmd.OutOrStdout(), planJSON(result)); err != nil {
					return err
				}
			} else if err := render.NewPlanRenderer(cmd.OutOrStdout()).RenderPlan(result); err != nil {
				return err
			}

			if !result.Success {
				return fmt.Errorf("plan %q failed", plan.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Run the remaining steps after a failure")

	return cmd
}

type planStepJSON struct {
	Step     string `json:"step"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
	Result   any    `json:"result,omitempty"`
	Decoded  []any  `json:"decoded,omitempty"`
	Snapshot any    `json:"snapshot,omitempty"`
	Trace    any    `json:"trace,omitempty"`
}

// planJSON flattens a plan result; errors do not marshal on their own
func planJSON(result *usecase.PlanResult) map[string]any {
	steps := make([]planStepJSON, 0, len(result.Steps))
	for _, s := range result.Steps {
		step := planStepJSON{
			Step:    s.Step.Label(s.Index),
			Passed:  s.Passed(),
			Decoded: s.Decoded,
		}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		if s.Result != nil {
			step.Result = s.Result
		}
		if s.Snapshot != nil {
			step.Snapshot = s.Snapshot
		}
		if s.Trace != nil {
			step.Trace = s.Trace
		}
		steps = append(steps, step)
	}
	return map[string]any{
		"plan":    result.Plan.Name,
		"mode":    result.Mode,
		"success": result.Success,
		"steps":   steps,
	}
}
