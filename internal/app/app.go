package app

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainsmith/chasm/internal/adapters/metrics"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig
	Logger *slog.Logger

	// Shared dependencies
	Progress usecase.ProgressSink
	Selector usecase.InteractiveSelector
	Factory  usecase.ClientFactory
	Registry *prometheus.Registry
	Metrics  *metrics.PrometheusMetrics

	// Backend service (chasm serve, or in-process when no service URL is set)
	ForkBackend  *usecase.ForkBackend
	TraceBackend *usecase.TraceBackend

	// Services the session talks to
	ForkService  usecase.ForkService
	TraceService usecase.TraceService

	// Use cases
	ListNetworks *usecase.ListNetworks
	ShowConfig   *usecase.ShowConfig
	SetConfig    *usecase.SetConfig
	RemoveConfig *usecase.RemoveConfig

	sessionOnce sync.Once
	session     *usecase.Session
	sessionErr  error
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	logger *slog.Logger,
	progress usecase.ProgressSink,
	selector usecase.InteractiveSelector,
	factory usecase.ClientFactory,
	registry *prometheus.Registry,
	promMetrics *metrics.PrometheusMetrics,
	forkBackend *usecase.ForkBackend,
	traceBackend *usecase.TraceBackend,
	forkService usecase.ForkService,
	traceService usecase.TraceService,
	listNetworks *usecase.ListNetworks,
	showConfig *usecase.ShowConfig,
	setConfig *usecase.SetConfig,
	removeConfig *usecase.RemoveConfig,
) (*App, error) {
	return &App{
		Config:       cfg,
		Logger:       logger,
		Progress:     progress,
		Selector:     selector,
		Factory:      factory,
		Registry:     registry,
		Metrics:      promMetrics,
		ForkBackend:  forkBackend,
		TraceBackend: traceBackend,
		ForkService:  forkService,
		TraceService: traceService,
		ListNetworks: listNetworks,
		ShowConfig:   showConfig,
		SetConfig:    setConfig,
		RemoveConfig: removeConfig,
	}, nil
}

// Session returns the working session, building it on first use. Commands
// that never execute anything do not pay for a bad endpoint or key.
func (a *App) Session() (*usecase.Session, error) {
	a.sessionOnce.Do(func() {
		a.session, a.sessionErr = usecase.NewSession(
			usecase.SessionConfig{
				Mode:         a.Config.Mode,
				LiveEndpoint: a.Config.ForkSource(),
				LiveKey:      a.Config.PrivateKey,
				ForkKey:      a.Config.ForkPrivateKey,
			},
			a.Factory,
			a.ForkService,
			a.TraceService,
			a.Config.TraceFlavor,
			a.Metrics,
			a.Progress,
			a.Logger,
		)
	})
	return a.session, a.sessionErr
}

// Close tears down the session if one was built. A running fork is left up.
func (a *App) Close() error {
	if a.session == nil {
		return nil
	}
	return a.session.Close()
}
