//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/chainsmith/chasm/internal/adapters"
	"github.com/chainsmith/chasm/internal/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper, sink usecase.ProgressSink) (*App, error) {
	wire.Build(
		// Configuration
		config.Provider,

		// Adapters
		adapters.AllAdapters,

		// Backend and services
		ProvideForkBackend,
		ProvideTraceBackend,
		ProvideForkService,
		ProvideTraceService,

		// Use cases
		usecase.NewListNetworks,
		usecase.NewShowConfig,
		usecase.NewSetConfig,
		usecase.NewRemoveConfig,

		// App
		NewApp,
	)
	return nil, nil
}
