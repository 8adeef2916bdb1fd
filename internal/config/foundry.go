package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/chainsmith/chasm/internal/domain/config"
)

// loadEnvFiles loads .env and .env.local from the project root. Variables
// already in the environment win.
func loadEnvFiles(projectRoot string) {
	for _, name := range []string{".env", ".env.local"} {
		envFile := filepath.Join(projectRoot, name)
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("failed to load env file", "file", envFile, "error", err)
		}
	}
}

// loadFoundryConfig reads [rpc_endpoints] from foundry.toml. Values are kept
// raw; ${VAR} references are expanded when a network is resolved. A missing
// foundry.toml yields an empty config.
func loadFoundryConfig(projectRoot string) (*config.FoundryConfig, error) {
	cfg := &config.FoundryConfig{RpcEndpoints: map[string]string{}}

	foundryPath := filepath.Join(projectRoot, "foundry.toml")
	if _, err := os.Stat(foundryPath); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(foundryPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foundry.toml: %w", err)
	}
	if cfg.RpcEndpoints == nil {
		cfg.RpcEndpoints = map[string]string{}
	}
	return cfg, nil
}

// NetworkResolver resolves network names against foundry.toml
type NetworkResolver struct {
	foundry *config.FoundryConfig
}

// NewNetworkResolver creates a resolver over the given foundry config
func NewNetworkResolver(foundry *config.FoundryConfig) *NetworkResolver {
	if foundry == nil {
		foundry = &config.FoundryConfig{}
	}
	return &NetworkResolver{foundry: foundry}
}

// ProvideNetworkResolver creates a NetworkResolver for Wire dependency injection
func ProvideNetworkResolver(cfg *config.RuntimeConfig) *NetworkResolver {
	return NewNetworkResolver(cfg.FoundryConfig)
}

// Names returns the configured network names, sorted
func (r *NetworkResolver) Names() []string {
	names := make([]string, 0, len(r.foundry.RpcEndpoints))
	for name := range r.foundry.RpcEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a network name, or a literal http(s) URL, to a network
func (r *NetworkResolver) Resolve(name string) (*config.Network, error) {
	if isURL(name) {
		return &config.Network{Name: "custom", RPCURL: name}, nil
	}

	raw, ok := r.foundry.RpcEndpoints[name]
	if !ok {
		return nil, fmt.Errorf("network '%s' not found in foundry.toml [rpc_endpoints]", name)
	}
	url, err := ExpandRPCEndpoint(name, raw)
	if err != nil {
		return nil, err
	}
	return &config.Network{Name: name, RPCURL: url}, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
