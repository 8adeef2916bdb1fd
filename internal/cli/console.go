package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/cli/render"
	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

const historyFileName = "console_history"

// NewConsoleCmd creates the console command
func NewConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive shell that keeps one session, and its snapshots, alive",
		Long: `Start an interactive shell. Every chasm command except serve, mcp and config
can be typed without the "chasm" prefix, and all of them share one session:
snapshots taken by a send can be listed with 'snapshots' and undone with
'revert', and 'trace' with no argument traces the last execution.

Ctrl-C cancels the running command; Ctrl-D or 'exit' leaves.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoTimeout: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(a.Config.DataDir, 0o755); err != nil {
				a.Logger.Debug("no history file", "error", err)
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:            consolePrompt(session.Mode()),
				HistoryFile:       filepath.Join(a.Config.DataDir, historyFileName),
				AutoComplete:      consoleCompleter(session),
				InterruptPrompt:   "^C",
				EOFPrompt:         "exit",
				HistorySearchFold: true,
			})
			if err != nil {
				return fmt.Errorf("failed to start console: %w", err)
			}
			defer rl.Close()

			out, errOut := rl.Stdout(), rl.Stderr()
			// the root context dies on the first Ctrl-C; lines get their own
			base := context.WithoutCancel(cmd.Context())

			fmt.Fprintf(out, "chasm console, %s mode. Type 'help' for commands, 'exit' to leave.\n", render.ModeBadge(session.Mode()))
			for {
				rl.SetPrompt(consolePrompt(session.Mode()))
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				words, err := shlex.Split(line)
				if err != nil {
					fmt.Fprintln(errOut, render.FormatError(err.Error()))
					continue
				}
				if err := runConsoleLine(base, a.Config.Timeout, words, out, errOut); err != nil {
					fmt.Fprintln(errOut, render.FormatError(err.Error()))
				}
			}
		},
	}
}

// runConsoleLine executes one line on a fresh command tree, so flag values
// never leak from one line into the next
func runConsoleLine(ctx context.Context, timeout time.Duration, words []string, out, errOut io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	root := newConsoleRoot()
	if target, _, err := root.Find(words); err == nil && timeout > 0 && target.Annotations[annotationNoTimeout] == "" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	root.SetArgs(words)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func newConsoleRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "chasm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		NewCallCmd(),
		NewSendCmd(),
		NewDeployCmd(),
		NewTraceCmd(),
		NewRunCmd(),
		NewStatusCmd(),
		NewModeCmd(),
		NewActionCmd(),
		NewSnapshotsCmd(),
		NewRevertCmd(),
		NewForkCmd(),
		NewNetworksCmd(),
	)
	return root
}

func consolePrompt(mode domain.Mode) string {
	return fmt.Sprintf("chasm %s> ", render.ModeBadge(mode))
}

func consoleCompleter(session *usecase.Session) *readline.PrefixCompleter {
	snapshotIDs := func(string) []string {
		return lo.Map(session.Snapshots(), func(s domain.Snapshot, _ int) string { return s.LocalID })
	}
	kinds := lo.Map(actionKinds, func(k string, _ int) readline.PrefixCompleterInterface { return readline.PcItem(k) })

	return readline.NewPrefixCompleter(
		readline.PcItem("call"),
		readline.PcItem("send"),
		readline.PcItem("deploy"),
		readline.PcItem("trace"),
		readline.PcItem("run"),
		readline.PcItem("status"),
		readline.PcItem("mode", readline.PcItem("live"), readline.PcItem("local")),
		readline.PcItem("action", kinds...),
		readline.PcItem("snapshots"),
		readline.PcItem("revert", readline.PcItemDynamic(snapshotIDs)),
		readline.PcItem("fork",
			readline.PcItem("start"),
			readline.PcItem("stop"),
			readline.PcItem("status"),
			readline.PcItem("logs"),
		),
		readline.PcItem("networks"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}
