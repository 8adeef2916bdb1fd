package app

import (
	"log/slog"

	"github.com/chainsmith/chasm/internal/adapters/anvil"
	"github.com/chainsmith/chasm/internal/adapters/service"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// ProvideForkBackend provides the fork node manager behind the fork endpoints
func ProvideForkBackend(cfg *config.RuntimeConfig, manager usecase.AnvilManager, progress usecase.ProgressSink, metrics usecase.MetricsRecorder, log *slog.Logger) *usecase.ForkBackend {
	return usecase.NewForkBackend(manager, anvil.DefaultName, cfg.AnvilPort, progress, metrics, log)
}

// ProvideTraceBackend provides the tracer behind the trace endpoints
func ProvideTraceBackend(cfg *config.RuntimeConfig, tracer usecase.Tracer, log *slog.Logger) *usecase.TraceBackend {
	return usecase.NewTraceBackend(tracer, cfg.LiveEndpoint().URL, log)
}

// ProvideForkService uses the remote backend when a service URL is configured
// and the in-process backend otherwise
func ProvideForkService(client *service.Client, backend *usecase.ForkBackend) usecase.ForkService {
	if client != nil {
		return client
	}
	return backend.Service()
}

// ProvideTraceService uses the remote backend when a service URL is configured
// and the in-process backend otherwise
func ProvideTraceService(client *service.Client, backend *usecase.TraceBackend) usecase.TraceService {
	if client != nil {
		return client
	}
	return backend
}
