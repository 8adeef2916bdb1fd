package render

import (
	"fmt"
	"io"

	"github.com/chainsmith/chasm/internal/usecase"
)

// NetworksRenderer renders network lists
type NetworksRenderer struct {
	out   io.Writer
	probe bool
}

// NewNetworksRenderer creates a new networks renderer. probe says whether
// chain ids were fetched.
func NewNetworksRenderer(out io.Writer, probe bool) *NetworksRenderer {
	return &NetworksRenderer{
		out:   out,
		probe: probe,
	}
}

// RenderNetworksList renders the list of networks
func (r *NetworksRenderer) RenderNetworksList(result *usecase.ListNetworksResult) error {
	if len(result.Networks) == 0 {
		fmt.Fprintln(r.out, "No networks configured in foundry.toml [rpc_endpoints]")
		return nil
	}

	fmt.Fprintln(r.out, "🌐 Available Networks:")
	fmt.Fprintln(r.out)

	for _, network := range result.Networks {
		switch {
		case network.Error != nil:
			fmt.Fprintf(r.out, "  ❌ %s - Error: %v\n", network.Name, network.Error)
		case r.probe:
			fmt.Fprintf(r.out, "  ✅ %s - Chain ID: %d\n", network.Name, network.ChainID)
		default:
			fmt.Fprintf(r.out, "  • %s %s\n", network.Name, labelStyle.Sprint(network.RPCURL))
		}
	}

	return nil
}
