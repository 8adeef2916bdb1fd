package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
)

const (
	// DataDirName is the per-project directory holding the settings cache
	DataDirName = ".chasm"

	// DefaultForkPrivateKey is anvil's first dev account. It only ever signs
	// on the local fork.
	DefaultForkPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	DefaultListenAddr = "127.0.0.1:3001"
	DefaultAnvilPort  = 8546
)

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	projectRoot := v.GetString("project_root")
	if projectRoot == "" {
		projectRoot = FindProjectRoot()
	}

	loadEnvFiles(projectRoot)

	mode, err := domain.ParseMode(v.GetString("mode"))
	if err != nil {
		return nil, err
	}

	flavor := domain.TraceFlavor(v.GetString("trace_flavor"))
	switch flavor {
	case domain.TraceCallTree, domain.TraceDebug:
	default:
		return nil, fmt.Errorf("unknown trace flavor %q (expected calltree or debug)", flavor)
	}

	cfg := &config.RuntimeConfig{
		ProjectRoot:    projectRoot,
		DataDir:        filepath.Join(projectRoot, DataDirName),
		Mode:           mode,
		PrivateKey:     v.GetString("private_key"),
		ForkPrivateKey: v.GetString("fork_private_key"),
		ServiceURL:     strings.TrimRight(v.GetString("service_url"), "/"),
		TraceFlavor:    flavor,
		Debug:          v.GetBool("debug"),
		NonInteractive: v.GetBool("non_interactive"),
		JSON:           v.GetBool("json"),
		Timeout:        v.GetDuration("timeout"),
		PollInterval:   v.GetDuration("poll_interval"),
		ListenAddr:     v.GetString("listen"),
		AnvilPort:      v.GetInt("anvil_port"),
		AnvilBin:       v.GetString("anvil_bin"),
		CastBin:        v.GetString("cast_bin"),
		TraceColor:     v.GetBool("trace_color"),
	}

	if v.IsSet("fork_block") && v.GetString("fork_block") != "" {
		block := v.GetUint64("fork_block")
		cfg.ForkBlock = &block
	}

	foundryConfig, err := loadFoundryConfig(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load foundry config: %w", err)
	}
	cfg.FoundryConfig = foundryConfig

	// an explicit URL beats a named network
	if rpcURL := v.GetString("rpc_url"); rpcURL != "" {
		cfg.Network = &config.Network{Name: "custom", RPCURL: rpcURL}
	} else if networkName := v.GetString("network"); networkName != "" {
		network, err := NewNetworkResolver(foundryConfig).Resolve(networkName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve network %s: %w", networkName, err)
		}
		cfg.Network = network
	}

	return cfg, nil
}

// FindProjectRoot walks up from the current directory to the nearest
// foundry.toml or .chasm directory, falling back to the current directory.
func FindProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	for dir := cwd; ; {
		for _, marker := range []string{"foundry.toml", DataDirName} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

// SetupViper creates and configures a viper instance. Flags are bound under
// their snake_case names so flags, CHASM_* env vars and the local config file
// share one key space.
func SetupViper(projectRoot string, cmd *cobra.Command) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config.local")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, DataDirName))

	v.SetEnvPrefix("CHASM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("mode", string(domain.ModeLive))
	v.SetDefault("trace_flavor", string(domain.TraceCallTree))
	v.SetDefault("fork_private_key", DefaultForkPrivateKey)
	v.SetDefault("timeout", "5m")
	v.SetDefault("poll_interval", "4s")
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("listen", DefaultListenAddr)
	v.SetDefault("anvil_port", DefaultAnvilPort)
	v.SetDefault("anvil_bin", "anvil")
	v.SetDefault("cast_bin", "cast")
	v.SetDefault("project_root", projectRoot)

	// Try to read config file (ignore error if not found)
	_ = v.ReadInConfig()

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil {
				panic(err)
			}
		})
	}

	return v
}
