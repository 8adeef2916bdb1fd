package cli

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/cli/render"
	"github.com/chainsmith/chasm/internal/usecase"
)

// NewNetworksCmd creates the networks command
func NewNetworksCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List available networks from foundry.toml",
		Long: `List all networks configured in the [rpc_endpoints] section of foundry.toml.
Any of them can be used as the live endpoint with --network.

With --probe, each endpoint is asked for its chain ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.ListNetworks.Run(cmd.Context(), usecase.ListNetworksParams{Probe: probe})
			if err != nil {
				return err
			}

			if app.Config.JSON {
				return render.RenderJSON(cmd.OutOrStdout(), lo.Map(result.Networks, func(n usecase.NetworkStatus, _ int) map[string]any {
					out := map[string]any{"name": n.Name, "rpcUrl": n.RPCURL}
					if probe && n.Error == nil {
						out["chainId"] = n.ChainID
					}
					if n.Error != nil {
						out["error"] = n.Error.Error()
					}
					return out
				}))
			}
			return render.NewNetworksRenderer(cmd.OutOrStdout(), probe).RenderNetworksList(result)
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Fetch each network's chain ID")

	return cmd
}
