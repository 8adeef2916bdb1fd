package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chainsmith/chasm/internal/domain/config"
)

// RemoveConfigParams contains parameters for removing configuration
type RemoveConfigParams struct {
	Key string
}

// RemoveConfigResult contains the result of removing configuration
type RemoveConfigResult struct {
	UpdatedConfig *config.LocalConfig
	ConfigPath    string
	Key           config.ConfigKey
	RemovedValue  string
}

// RemoveConfig is a use case for removing configuration values
type RemoveConfig struct {
	store LocalConfigStore
}

// NewRemoveConfig creates a new RemoveConfig use case
func NewRemoveConfig(store LocalConfigStore) *RemoveConfig {
	return &RemoveConfig{
		store: store,
	}
}

// Run executes the remove config use case
func (uc *RemoveConfig) Run(ctx context.Context, params RemoveConfigParams) (*RemoveConfigResult, error) {
	if !uc.store.Exists() {
		path := uc.store.GetPath()
		if cwd, err := os.Getwd(); err == nil {
			if relPath, err := filepath.Rel(cwd, path); err == nil {
				path = relPath
			}
		}
		return nil, fmt.Errorf("no config file found at %s", path)
	}

	key, err := validateConfigKey(params.Key)
	if err != nil {
		return nil, err
	}

	cfg, err := uc.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	defaults := config.DefaultLocalConfig()
	var removed string
	switch key {
	case config.ConfigKeyMode:
		removed = cfg.Mode
		cfg.Mode = defaults.Mode
	case config.ConfigKeyNetwork:
		removed = cfg.Network
		cfg.Network = defaults.Network
	case config.ConfigKeyForkBlock:
		if cfg.ForkBlock != nil {
			removed = strconv.FormatUint(*cfg.ForkBlock, 10)
		}
		cfg.ForkBlock = nil
	case config.ConfigKeyServiceURL:
		removed = cfg.ServiceURL
		cfg.ServiceURL = ""
	}

	if err := uc.store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	return &RemoveConfigResult{
		UpdatedConfig: cfg,
		ConfigPath:    uc.store.GetPath(),
		Key:           key,
		RemovedValue:  removed,
	}, nil
}
