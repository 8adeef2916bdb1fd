package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chainsmith/chasm/internal/domain"
)

// ForkSessionManager owns the caller-side view of the local fork node and the
// client pair bound to it
type ForkSessionManager struct {
	service ForkService
	factory ClientFactory
	stack   *SnapshotStack
	metrics MetricsRecorder
	log     *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	source  domain.Endpoint
	key     string
	session domain.ForkSession
	pair    *ClientPair
	port    int // port the cached pair is bound to
	epoch   uint64
	closed  bool
}

// NewForkSessionManager creates a manager that forks source on first use
func NewForkSessionManager(
	service ForkService,
	factory ClientFactory,
	stack *SnapshotStack,
	source domain.Endpoint,
	signingKey string,
	metrics MetricsRecorder,
	log *slog.Logger,
) *ForkSessionManager {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ForkSessionManager{
		service: service,
		factory: factory,
		stack:   stack,
		source:  source,
		key:     signingKey,
		metrics: metrics,
		log:     log,
	}
}

// SetSource changes the endpoint used by the next lazy start. A running fork
// keeps the endpoint it was started with.
func (m *ForkSessionManager) SetSource(source domain.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
}

// SetSigningKey changes the key used for fork client pairs and drops the cached pair
func (m *ForkSessionManager) SetSigningKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == key {
		return
	}
	m.key = key
	m.dropPairLocked()
}

// Source returns the endpoint the next lazy start will fork
func (m *ForkSessionManager) Source() domain.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// Session returns the last known fork session
func (m *ForkSessionManager) Session() domain.ForkSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Status queries the fork service. Failures are logged and reported as not running.
func (m *ForkSessionManager) Status(ctx context.Context) domain.ForkSession {
	st, err := m.service.Status(ctx)
	if err != nil || st == nil {
		if err != nil {
			m.log.Debug("fork status probe failed", "error", err)
		}
		st = &domain.ForkSession{}
	}
	if !st.Running {
		st.Port = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeLocked(*st)
	return m.session
}

// observeLocked records a status report, dropping the cached pair when the
// fork it was bound to is gone
func (m *ForkSessionManager) observeLocked(st domain.ForkSession) {
	if m.pair != nil && (!st.Running || st.Port != m.port) {
		m.dropPairLocked()
	}
	m.session = st
	m.metrics.SetForkRunning(st.Running)
}

func (m *ForkSessionManager) dropPairLocked() {
	if m.pair == nil {
		return
	}
	if err := m.pair.Close(); err != nil {
		m.log.Debug("failed to close fork client pair", "error", err)
	}
	m.pair = nil
	m.port = 0
}

// Start asks the fork service to fork source and checks once that it came up
func (m *ForkSessionManager) Start(ctx context.Context, source domain.Endpoint) (domain.Endpoint, error) {
	if source.URL == "" {
		return domain.Endpoint{}, &domain.ForkStartError{Source: "<unset>", Reason: "no source endpoint configured"}
	}

	m.log.Info("starting fork", "source", source.String())
	if err := m.service.Start(ctx, source); err != nil {
		return domain.Endpoint{}, &domain.ForkStartError{Source: source.String(), Err: err}
	}

	st, err := m.service.Status(ctx)
	if err != nil {
		return domain.Endpoint{}, &domain.ForkStartError{Source: source.String(), Reason: "status check failed", Err: err}
	}
	if st == nil || !st.Running || !st.HasPort() {
		return domain.Endpoint{}, &domain.ForkStartError{Source: source.String(), Reason: "service did not report a running fork"}
	}
	if st.PinnedBlock == nil {
		st.PinnedBlock = source.PinnedBlock
	}
	if st.SourceURL == "" {
		st.SourceURL = source.URL
	}

	m.mu.Lock()
	m.observeLocked(*st)
	m.mu.Unlock()

	m.log.Info("fork running", "port", st.Port)
	return st.Endpoint(), nil
}

// Stop asks the fork service to stop. The caller side always ends up not
// running, the cached pair is dropped and every snapshot is discarded.
func (m *ForkSessionManager) Stop(ctx context.Context) {
	if err := m.service.Stop(ctx); err != nil {
		m.log.Warn("fork stop request failed", "error", err)
	}

	m.mu.Lock()
	m.epoch++
	m.dropPairLocked()
	m.session = domain.ForkSession{}
	m.metrics.SetForkRunning(false)
	m.mu.Unlock()

	if m.stack != nil {
		m.stack.Clear()
	}
}

// Close drops the cached pair without touching the fork service
func (m *ForkSessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.closed = true
	m.dropPairLocked()
}

// Cached returns the cached pair for the running fork, if any
func (m *ForkSessionManager) Cached() *ClientPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair != nil && m.session.Running && m.session.Port == m.port {
		return m.pair
	}
	return nil
}

// EnsureClients returns the client pair for the running fork, starting the
// fork first if needed. Concurrent callers share a single start and build.
func (m *ForkSessionManager) EnsureClients(ctx context.Context) (*ClientPair, error) {
	if pair := m.Cached(); pair != nil {
		return pair, nil
	}

	v, err, shared := m.group.Do("clients", func() (any, error) {
		return m.ensureClients(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("joined in-flight fork client setup")
	}
	return v.(*ClientPair), nil
}

func (m *ForkSessionManager) ensureClients(ctx context.Context) (*ClientPair, error) {
	if pair := m.Cached(); pair != nil {
		return pair, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	epoch, source, key := m.epoch, m.source, m.key
	m.mu.Unlock()

	st := m.Status(ctx)
	endpoint := st.Endpoint()
	if !st.Running || !st.HasPort() {
		var err error
		endpoint, err = m.Start(ctx, source)
		if err != nil {
			return nil, err
		}
	}

	pair, err := m.factory.Build(endpoint.URL, key)
	if err != nil {
		return nil, fmt.Errorf("failed to build fork clients: %w", err)
	}
	pair.Endpoint = endpoint

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || !m.session.Running {
		_ = pair.Close()
		return nil, errors.New("fork was stopped while its clients were being set up")
	}
	m.dropPairLocked()
	m.pair = pair
	m.port = m.session.Port
	m.log.Debug("fork clients ready", "endpoint", endpoint.String())
	return pair, nil
}
