package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/chainsmith/chasm/internal/adapters/progress"
	"github.com/chainsmith/chasm/internal/app"
	"github.com/chainsmith/chasm/internal/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
)

// Command annotations read by the root pre-run
const (
	// annotationLogProgress sends progress to the logger instead of a spinner
	annotationLogProgress = "chasm/log-progress"
	// annotationNoTimeout exempts long-running commands from --timeout
	annotationNoTimeout = "chasm/no-timeout"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var cancel context.CancelFunc

	rootCmd := &cobra.Command{
		Use:   "chasm",
		Short: "Run contract calls against a live network or a local fork of it",
		Long: `chasm sends calls and transactions to a live EVM network, or to a local
anvil fork of it, from one session. In local mode every write is preceded by a
snapshot so it can be reverted, and cheat actions (warp, roll, set-balance, ...)
are available. Any execution can be traced with cast.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsApp(cmd) {
				return nil
			}

			projectRoot := config.FindProjectRoot()
			v := config.SetupViper(projectRoot, cmd)

			appInstance, err := app.InitApp(v, progressSink(cmd, v))
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			slog.SetDefault(appInstance.Logger)

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			if appInstance.Config.Timeout > 0 && cmd.Annotations[annotationNoTimeout] == "" {
				ctx, cancel = context.WithTimeout(ctx, appInstance.Config.Timeout)
			}
			cmd.SetContext(ctx)

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cancel != nil {
				cancel()
			}
			if a, err := getApp(cmd); err == nil {
				return a.Close()
			}
			return nil
		},
	}

	// Global flags; each binds to the viper key of the same snake_case name
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug output")
	flags.Bool("non-interactive", false, "Disable interactive prompts")
	flags.Bool("json", false, "Print results as JSON")
	flags.StringP("mode", "m", "", "Mode to run in: live or local (alias: fork)")
	flags.StringP("network", "n", "", "Network from foundry.toml [rpc_endpoints] to use as the live endpoint")
	flags.String("rpc-url", "", "Live RPC URL; overrides --network")
	flags.String("service-url", "", "Fork and trace service URL (chasm serve); forks run in-process when unset")
	flags.String("trace-flavor", "", "Trace flavor for calls: calltree or debug")
	flags.Duration("timeout", 0, "Abort commands that take longer than this (0 uses the configured default)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "main",
		Title: "Main Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "local",
		Title: "Local Mode Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	for _, c := range []*cobra.Command{
		NewCallCmd(), NewSendCmd(), NewDeployCmd(), NewTraceCmd(), NewRunCmd(), NewStatusCmd(), NewModeCmd(), NewConsoleCmd(),
	} {
		c.GroupID = "main"
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{
		NewActionCmd(), NewSnapshotsCmd(), NewRevertCmd(), NewForkCmd(),
	} {
		c.GroupID = "local"
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{
		NewNetworksCmd(), NewConfigCmd(), NewServeCmd(), NewMCPCmd(),
	} {
		c.GroupID = "management"
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// skipsApp reports commands that run without a project or endpoint
func skipsApp(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return false
}

// progressSink picks a spinner for interactive terminals, the logger for
// long-running services, and silence otherwise
func progressSink(cmd *cobra.Command, v *viper.Viper) usecase.ProgressSink {
	if cmd.Annotations[annotationLogProgress] != "" {
		// resolves slog.Default() per call, so it picks up the app logger
		return progress.NewLogSink(nil)
	}
	if v.GetBool("json") || !term.IsTerminal(int(os.Stderr.Fd())) {
		return progress.NewNopSink()
	}
	return progress.NewSpinnerSink()
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	appInstance := ctx.Value(appKey)
	if appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	a, ok := appInstance.(*app.App)
	if !ok {
		return nil, fmt.Errorf("invalid app instance")
	}

	return a, nil
}

// getSession retrieves the app and its working session
func getSession(cmd *cobra.Command) (*app.App, *usecase.Session, error) {
	a, err := getApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	session, err := a.Session()
	if err != nil {
		return nil, nil, err
	}
	return a, session, nil
}
