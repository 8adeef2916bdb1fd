package adapters

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chainsmith/chasm/internal/adapters/anvil"
	"github.com/chainsmith/chasm/internal/adapters/blockchain"
	internalconfig "github.com/chainsmith/chasm/internal/adapters/config"
	"github.com/chainsmith/chasm/internal/adapters/foundry"
	"github.com/chainsmith/chasm/internal/adapters/fs"
	"github.com/chainsmith/chasm/internal/adapters/interactive"
	"github.com/chainsmith/chasm/internal/adapters/metrics"
	"github.com/chainsmith/chasm/internal/adapters/service"
	"github.com/chainsmith/chasm/internal/config"
	"github.com/chainsmith/chasm/internal/logging"
	"github.com/chainsmith/chasm/internal/usecase"
)

// ProvideRegistry provides the process-wide metrics registry
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// FSSet provides filesystem-based implementations
var FSSet = wire.NewSet(
	fs.NewLocalConfigStoreAdapter,
	wire.Bind(new(usecase.LocalConfigStore), new(*fs.LocalConfigStoreAdapter)),
)

// BlockchainSet provides the JSON-RPC client factory
var BlockchainSet = wire.NewSet(
	blockchain.NewClientFactory,
	wire.Bind(new(usecase.ClientFactory), new(*blockchain.ClientFactory)),
)

// BackendSet provides the adapters behind the fork lifecycle and trace services
var BackendSet = wire.NewSet(
	anvil.NewManager,
	wire.Bind(new(usecase.AnvilManager), new(*anvil.Manager)),

	foundry.NewTracer,
	wire.Bind(new(usecase.Tracer), new(*foundry.Tracer)),

	service.NewClientFromConfig,
)

// InteractiveSet provides interactive implementations
var InteractiveSet = wire.NewSet(
	interactive.NewSelectorAdapter,
	wire.Bind(new(usecase.InteractiveSelector), new(*interactive.SelectorAdapter)),
)

// ConfigSet provides configuration-based implementations
var ConfigSet = wire.NewSet(
	config.ProvideNetworkResolver,
	internalconfig.NewNetworkResolverAdapter,
	wire.Bind(new(usecase.NetworkResolver), new(*internalconfig.NetworkResolverAdapter)),
)

// MetricsSet provides prometheus-backed telemetry
var MetricsSet = wire.NewSet(
	ProvideRegistry,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
	metrics.NewPrometheusMetrics,
	wire.Bind(new(usecase.MetricsRecorder), new(*metrics.PrometheusMetrics)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	logging.LoggingSet,

	FSSet,
	BlockchainSet,
	BackendSet,
	InteractiveSet,
	ConfigSet,
	MetricsSet,
)
