package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/adapters/progress"
	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

func TestSkipsApp(t *testing.T) {
	tests := []struct {
		name     string
		cmdName  string
		expected bool
	}{
		{"version", "version", true},
		{"help", "help", true},
		{"completion", "completion", true},
		{"shell completion request", cobra.ShellCompRequestCmd, true},
		{"call", "call", false},
		{"console", "console", false},
		{"serve", "serve", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: tt.cmdName}
			assert.Equal(t, tt.expected, skipsApp(cmd))
		})
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	groups := map[string][]string{
		"main":       {"call", "send", "deploy", "trace", "run", "status", "mode", "console"},
		"local":      {"action", "snapshots", "revert", "fork"},
		"management": {"networks", "config", "serve", "mcp"},
	}
	for group, names := range groups {
		for _, name := range names {
			cmd, _, err := root.Find([]string{name})
			require.NoError(t, err, name)
			assert.Equal(t, name, cmd.Name())
			assert.Equal(t, group, cmd.GroupID, name)
		}
	}

	for _, flag := range []string{"debug", "non-interactive", "json", "mode", "network", "rpc-url", "service-url", "trace-flavor", "timeout"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}

	// history is an alias of snapshots
	cmd, _, err := root.Find([]string{"history"})
	require.NoError(t, err)
	assert.Equal(t, "snapshots", cmd.Name())
}

func TestLongRunningCommandsSkipTimeout(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{{"console"}, {"serve"}, {"mcp"}, {"fork", "logs"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.NotEmpty(t, cmd.Annotations[annotationNoTimeout], "%v", path)
	}

	cmd, _, err := root.Find([]string{"send"})
	require.NoError(t, err)
	assert.Empty(t, cmd.Annotations[annotationNoTimeout])
}

func TestProgressSink(t *testing.T) {
	t.Run("services log progress", func(t *testing.T) {
		cmd := &cobra.Command{Use: "serve", Annotations: map[string]string{annotationLogProgress: "true"}}
		assert.IsType(t, &progress.LogSink{}, progressSink(cmd, viper.New()))
	})

	t.Run("json output is silent", func(t *testing.T) {
		v := viper.New()
		v.Set("json", true)
		assert.IsType(t, &progress.NopSink{}, progressSink(&cobra.Command{Use: "call"}, v))
	})
}

func TestGetAppWithoutInit(t *testing.T) {
	cmd := &cobra.Command{Use: "call"}
	cmd.SetContext(context.Background())

	_, err := getApp(cmd)
	assert.EqualError(t, err, "app not initialized")

	_, _, err = getSession(cmd)
	assert.Error(t, err)
}

func TestPositionalCall(t *testing.T) {
	tests := []struct {
		name    string
		spec    usecase.CallSpec
		args    []string
		want    usecase.CallSpec
		wantErr string
	}{
		{
			name: "target only",
			args: []string{"0xabc"},
			want: usecase.CallSpec{To: "0xabc"},
		},
		{
			name: "signature and args",
			args: []string{"0xabc", "transfer(address,uint256)", "0xdef", "10"},
			want: usecase.CallSpec{To: "0xabc", Sig: "transfer(address,uint256)", Args: []string{"0xdef", "10"}},
		},
		{
			name: "data with target",
			spec: usecase.CallSpec{Data: "0x18160ddd"},
			args: []string{"0xabc"},
			want: usecase.CallSpec{To: "0xabc", Data: "0x18160ddd"},
		},
		{
			name:    "data with signature",
			spec:    usecase.CallSpec{Data: "0x18160ddd"},
			args:    []string{"0xabc", "totalSupply()"},
			wantErr: "--data cannot be combined with a signature",
		},
		{
			name:    "no target",
			wantErr: "a target address is required",
		},
		{
			name: "raw alone",
			spec: usecase.CallSpec{Raw: `{"method":"eth_call"}`},
			want: usecase.CallSpec{Raw: `{"method":"eth_call"}`},
		},
		{
			name:    "raw with positionals",
			spec:    usecase.CallSpec{Raw: `{"method":"eth_call"}`},
			args:    []string{"0xabc"},
			wantErr: "--raw cannot be combined with positional arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.spec
			err := positionalCall(&spec, tt.args)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec)
		})
	}
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("inline hex", func(t *testing.T) {
		a, err := loadArtifact("0x6001600055")
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x01, 0x60, 0x00, 0x55}, a.bytecode)
		assert.Nil(t, a.abi)
	})

	t.Run("hex file", func(t *testing.T) {
		a, err := loadArtifact(write("Counter.bin", "0x6001\n"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x01}, a.bytecode)
	})

	t.Run("foundry artifact", func(t *testing.T) {
		path := write("Token.json", `{
			"abi": [{"type":"constructor","inputs":[{"name":"supply","type":"uint256"}],"stateMutability":"nonpayable"}],
			"bytecode": {"object": "0x6001"}
		}`)
		a, err := loadArtifact(path)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x01}, a.bytecode)
		require.NotNil(t, a.abi)
		assert.Len(t, a.abi.Constructor.Inputs, 1)
	})

	t.Run("hardhat artifact without prefix", func(t *testing.T) {
		a, err := loadArtifact(write("Plain.json", `{"bytecode": "6002"}`))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x02}, a.bytecode)
	})

	t.Run("interface artifact", func(t *testing.T) {
		_, err := loadArtifact(write("IToken.json", `{"abi": [], "bytecode": {"object": "0x"}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty bytecode")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadArtifact(filepath.Join(dir, "Nope.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read artifact")
	})

	t.Run("bad inline hex", func(t *testing.T) {
		_, err := loadArtifact("0xzz")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid bytecode")
	})
}

func TestPlanJSON(t *testing.T) {
	plan := &usecase.Plan{
		Name: "rewind",
		Steps: []usecase.PlanStep{
			{Name: "fund", Action: &domain.ActionSpec{Kind: "mine"}},
			{Revert: "fund"},
		},
	}
	result := &usecase.PlanResult{
		Plan: plan,
		Mode: domain.ModeLocal,
		Steps: []*usecase.PlanStepResult{
			{Index: 0, Step: &plan.Steps[0], Snapshot: &domain.Snapshot{ID: "0x1", LocalID: "snap-1"}},
			{Index: 1, Step: &plan.Steps[1], Err: errors.New("no snapshot matches \"fund\"")},
		},
	}

	out := planJSON(result)
	assert.Equal(t, "rewind", out["plan"])
	assert.Equal(t, domain.ModeLocal, out["mode"])
	assert.Equal(t, false, out["success"])

	steps, ok := out["steps"].([]planStepJSON)
	require.True(t, ok)
	require.Len(t, steps, 2)
	assert.Equal(t, "fund", steps[0].Step)
	assert.True(t, steps[0].Passed)
	assert.NotNil(t, steps[0].Snapshot)
	assert.Nil(t, steps[0].Result)

	assert.Equal(t, "step 2", steps[1].Step)
	assert.False(t, steps[1].Passed)
	assert.Equal(t, `no snapshot matches "fund"`, steps[1].Error)
}

func TestConsoleRoot(t *testing.T) {
	root := newConsoleRoot()

	for _, name := range []string{"call", "send", "snapshots", "revert", "mode", "fork"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	// service commands stay out of the shell
	for _, name := range []string{"serve", "mcp", "console", "config"} {
		cmd, _, err := root.Find([]string{name})
		if err == nil {
			assert.Equal(t, root, cmd, name)
		}
	}
}

func TestRunConsoleLine(t *testing.T) {
	t.Run("help lists the shell commands", func(t *testing.T) {
		var out bytes.Buffer
		err := runConsoleLine(context.Background(), 0, []string{"help"}, &out, &out)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "snapshots")
		assert.Contains(t, out.String(), "revert")
	})

	t.Run("unknown command", func(t *testing.T) {
		var out bytes.Buffer
		err := runConsoleLine(context.Background(), 0, []string{"frobnicate"}, &out, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown command")
	})

	t.Run("commands need a session", func(t *testing.T) {
		var out bytes.Buffer
		err := runConsoleLine(context.Background(), 0, []string{"snapshots"}, &out, &out)
		assert.EqualError(t, err, "app not initialized")
	})
}

func TestConsolePrompt(t *testing.T) {
	assert.Contains(t, consolePrompt(domain.ModeLive), "LIVE")
	assert.Contains(t, consolePrompt(domain.ModeLocal), "LOCAL")
}
