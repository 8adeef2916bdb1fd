package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/chainsmith/chasm/internal/domain"
)

// ForkBackend hosts the single fork node behind the fork lifecycle endpoints
type ForkBackend struct {
	anvil    AnvilManager
	progress ProgressSink
	metrics  MetricsRecorder
	log      *slog.Logger

	mu       sync.Mutex
	instance *domain.AnvilInstance
}

// NewForkBackend creates a backend managing a fork node named name on port
func NewForkBackend(anvil AnvilManager, name string, port int, progress ProgressSink, metrics MetricsRecorder, log *slog.Logger) *ForkBackend {
	if progress == nil {
		progress = NopProgress{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ForkBackend{
		anvil:    anvil,
		progress: progress,
		metrics:  metrics,
		log:      log,
		instance: &domain.AnvilInstance{Name: name, Port: port},
	}
}

// Start forks req.RPCURL, replacing any running fork
func (b *ForkBackend) Start(ctx context.Context, req domain.ForkStartRequest) (*domain.ForkSession, error) {
	if req.RPCURL == "" {
		return nil, fmt.Errorf("rpcUrl is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	status, err := b.anvil.GetStatus(ctx, b.instance)
	if err == nil && status.Running {
		b.progress.Info(fmt.Sprintf("Stopping running fork (PID %d)", status.PID))
		if err := b.anvil.Stop(ctx, b.instance); err != nil {
			return nil, fmt.Errorf("failed to stop running fork: %w", err)
		}
	}

	b.instance.ForkURL = req.RPCURL
	b.instance.ForkBlock = req.BlockNumber

	b.progress.OnProgress(ctx, ProgressEvent{Stage: "fork", Message: fmt.Sprintf("Forking %s on port %d", req.RPCURL, b.instance.Port), Spinner: true})
	if err := b.anvil.Start(ctx, b.instance); err != nil {
		b.metrics.SetForkRunning(false)
		b.progress.Error("fork failed to start")
		return nil, fmt.Errorf("failed to start forked anvil: %w", err)
	}
	b.progress.Info(fmt.Sprintf("Fork listening on %s", b.instance.RPCURL()))

	b.log.Info("fork started", "source", req.RPCURL, "port", b.instance.Port)
	b.metrics.SetForkRunning(true)
	return b.sessionLocked(true), nil
}

// Stop stops the fork node if it is running
func (b *ForkBackend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, err := b.anvil.GetStatus(ctx, b.instance)
	if err != nil || !status.Running {
		b.instance.ForkURL = ""
		b.instance.ForkBlock = nil
		b.metrics.SetForkRunning(false)
		return nil
	}

	if err := b.anvil.Stop(ctx, b.instance); err != nil {
		return fmt.Errorf("failed to stop anvil: %w", err)
	}
	b.instance.ForkURL = ""
	b.instance.ForkBlock = nil
	b.metrics.SetForkRunning(false)
	b.log.Info("fork stopped")
	return nil
}

// Status reports the fork node. A process that is up but not answering RPC
// is reported as not running.
func (b *ForkBackend) Status(ctx context.Context) (*domain.ForkSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, err := b.anvil.GetStatus(ctx, b.instance)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	running := status.Running && status.RPCHealthy
	b.metrics.SetForkRunning(running)
	return b.sessionLocked(running), nil
}

// Logs writes the fork node's log to w
func (b *ForkBackend) Logs(ctx context.Context, w io.Writer) error {
	b.mu.Lock()
	instance := *b.instance
	b.mu.Unlock()
	return b.anvil.StreamLogs(ctx, &instance, w)
}

// Instance returns a copy of the managed instance
func (b *ForkBackend) Instance() domain.AnvilInstance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.instance
}

func (b *ForkBackend) sessionLocked(running bool) *domain.ForkSession {
	return &domain.ForkSession{
		Running:     running,
		Port:        b.instance.Port,
		SourceURL:   b.instance.ForkURL,
		PinnedBlock: b.instance.ForkBlock,
	}
}

// Service exposes the backend as an in-process ForkService, for running
// without a separate backend process
func (b *ForkBackend) Service() ForkService {
	return embeddedForkService{backend: b}
}

type embeddedForkService struct {
	backend *ForkBackend
}

func (s embeddedForkService) Status(ctx context.Context) (*domain.ForkSession, error) {
	return s.backend.Status(ctx)
}

func (s embeddedForkService) Start(ctx context.Context, source domain.Endpoint) error {
	_, err := s.backend.Start(ctx, domain.ForkStartRequest{RPCURL: source.URL, BlockNumber: source.PinnedBlock})
	return err
}

func (s embeddedForkService) Stop(ctx context.Context) error {
	return s.backend.Stop(ctx)
}
