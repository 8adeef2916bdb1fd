package render

import (
	"fmt"
	"io"

	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// ConfigRenderer renders config-related output
type ConfigRenderer struct {
	out io.Writer
}

// NewConfigRenderer creates a new config renderer
func NewConfigRenderer(out io.Writer) *ConfigRenderer {
	return &ConfigRenderer{
		out: out,
	}
}

// RenderConfig renders the configuration display
func (r *ConfigRenderer) RenderConfig(result *usecase.ShowConfigResult) error {
	if !result.Exists {
		fmt.Fprintf(r.out, "❌ No .chasm/config.local.json file found\n")
		fmt.Fprintf(r.out, "⚠️  Without config, chasm starts in live mode and needs --network or --rpc-url\n")
		return nil
	}

	cfg := result.Config
	fmt.Fprintln(r.out, "📋 Current config:")
	fmt.Fprintf(r.out, "Mode:        %s\n", orNotSet(cfg.Mode))
	fmt.Fprintf(r.out, "Network:     %s\n", orNotSet(cfg.Network))
	if cfg.ForkBlock != nil {
		fmt.Fprintf(r.out, "Fork block:  %d\n", *cfg.ForkBlock)
	} else {
		fmt.Fprintf(r.out, "Fork block:  %s\n", "(latest)")
	}
	fmt.Fprintf(r.out, "Service URL: %s\n", orNotSet(cfg.ServiceURL))

	fmt.Fprintf(r.out, "📁 config file: %s\n", getRelativePath(result.ConfigPath))

	return nil
}

// RenderSet renders the result of setting a configuration value
func (r *ConfigRenderer) RenderSet(result *usecase.SetConfigResult) error {
	fmt.Fprintf(r.out, "✅ Set %s to: %s\n", result.Key, result.Value)
	fmt.Fprintf(r.out, "📁 config saved to: %s\n", getRelativePath(result.ConfigPath))
	return nil
}

// RenderRemove renders the result of removing a configuration value
func (r *ConfigRenderer) RenderRemove(result *usecase.RemoveConfigResult) error {
	switch result.Key {
	case config.ConfigKeyMode:
		fmt.Fprintf(r.out, "✅ Reset mode to: live\n")
	case config.ConfigKeyNetwork:
		fmt.Fprintf(r.out, "✅ Removed network from config (will be required as flag)\n")
	case config.ConfigKeyForkBlock:
		fmt.Fprintf(r.out, "✅ Removed fork block (forks follow the latest block)\n")
	case config.ConfigKeyServiceURL:
		fmt.Fprintf(r.out, "✅ Removed service URL (forks run in-process)\n")
	}

	fmt.Fprintf(r.out, "📁 config saved to: %s\n", getRelativePath(result.ConfigPath))
	return nil
}

func orNotSet(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}
