package cli

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/config"
	"github.com/chainsmith/chasm/internal/mcp"
)

// NewMCPCmd creates the mcp command
func NewMCPCmd() *cobra.Command {
	var allowLive bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the session as MCP tools over stdio",
		Long: `Run an MCP server on stdin/stdout whose tools drive one chasm session: switch
modes, execute calls, apply cheat actions, list and revert snapshots, trace,
and start or stop the fork.

Writes in live mode are refused unless --allow-live is given.

Example client config:
  {"mcpServers": {"chasm": {"command": "chasm", "args": ["mcp", "--network", "sepolia"]}}}`,
		Args: cobra.NoArgs,
		Annotations: map[string]string{
			annotationLogProgress: "true",
			annotationNoTimeout:   "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}

			s := mcp.NewServer(session, config.Version, allowLive)
			a.Logger.Info("serving MCP on stdio", "mode", session.Mode(), "allow_live", allowLive)
			if err := server.ServeStdio(s); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowLive, "allow-live", false, "Allow transactions on the live network")

	return cmd
}
