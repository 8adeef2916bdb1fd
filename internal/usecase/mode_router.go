package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"

	"github.com/chainsmith/chasm/internal/domain"
)

// SessionConfig is the initial configuration of a working session
type SessionConfig struct {
	Mode         domain.Mode
	LiveEndpoint domain.Endpoint
	LiveKey      string
	ForkKey      string
}

// SessionStatus is the mode and connectivity summary of a session
type SessionStatus struct {
	Mode          domain.Mode        `json:"mode"`
	LiveEndpoint  domain.Endpoint    `json:"liveEndpoint"`
	LiveConnected bool               `json:"liveConnected"`
	Fork          domain.ForkSession `json:"fork"`
	Snapshots     int                `json:"snapshots"`
	HeadID        string             `json:"headId,omitempty"`
	LatestBlock   uint64             `json:"latestBlock,omitempty"`
}

// Session is the single owner of the working session's mutable state: the
// selected mode, the live client pair, the fork session and its snapshot stack.
// Only its methods mutate that state.
type Session struct {
	factory   ClientFactory
	fork      *ForkSessionManager
	stack     *SnapshotStack
	pipeline  *RequestPipeline
	tracer    *TraceResolver
	dashboard *Dashboard
	metrics   MetricsRecorder
	log       *slog.Logger

	mu           sync.Mutex
	mode         domain.Mode
	liveEndpoint domain.Endpoint
	liveKey      string
	livePair     *ClientPair
	instances    map[string]domain.Mode
	last         *TraceParams
	closed       bool
}

// NewSession wires a session. The live pair is built eagerly so a bad
// endpoint or key is reported up front; the fork is only started on first use.
func NewSession(
	cfg SessionConfig,
	factory ClientFactory,
	forkService ForkService,
	traceService TraceService,
	flavor domain.TraceFlavor,
	metrics MetricsRecorder,
	progress ProgressSink,
	log *slog.Logger,
) (*Session, error) {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = domain.ModeLive
	}

	stack := NewSnapshotStack(log, metrics)
	s := &Session{
		factory:      factory,
		stack:        stack,
		fork:         NewForkSessionManager(forkService, factory, stack, cfg.LiveEndpoint, cfg.ForkKey, metrics, log),
		pipeline:     NewRequestPipeline(stack, metrics, progress, log),
		tracer:       NewTraceResolver(traceService, flavor, log),
		dashboard:    NewDashboard(),
		metrics:      metrics,
		log:          log,
		mode:         mode,
		liveEndpoint: cfg.LiveEndpoint,
		liveKey:      cfg.LiveKey,
		instances:    map[string]domain.Mode{},
	}

	if cfg.LiveEndpoint.URL != "" {
		pair, err := factory.Build(cfg.LiveEndpoint.URL, cfg.LiveKey)
		if err != nil {
			return nil, err
		}
		pair.Endpoint = cfg.LiveEndpoint
		s.livePair = pair
	}
	return s, nil
}

// Mode returns the selected mode
func (s *Session) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Dashboard returns the session's block and result feed
func (s *Session) Dashboard() *Dashboard {
	return s.dashboard
}

// SetMode switches mode. Leaving local mode purges local dashboard data but
// keeps the snapshot history. Entering local mode does not start a fork.
func (s *Session) SetMode(mode domain.Mode) error {
	if mode != domain.ModeLive && mode != domain.ModeLocal {
		return fmt.Errorf("unknown mode %q", mode)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	prev := s.mode
	s.mode = mode
	s.mu.Unlock()

	if prev == mode {
		return nil
	}
	if prev == domain.ModeLocal {
		s.dashboard.Purge(domain.ModeLocal)
	}
	s.log.Info("mode changed", "from", prev, "to", mode)
	return nil
}

// OpenInstance registers an instance (a tab, a plan, an MCP client) whose last
// recorded mode was recorded. If it differs from the current mode the session
// switches to it.
func (s *Session) OpenInstance(id string, recorded domain.Mode) (domain.Mode, error) {
	s.mu.Lock()
	if recorded == "" {
		recorded = s.mode
	}
	s.instances[id] = recorded
	current := s.mode
	s.mu.Unlock()

	if recorded != current {
		if err := s.SetMode(recorded); err != nil {
			return current, err
		}
	}
	return recorded, nil
}

// CloseInstance forgets an instance
func (s *Session) CloseInstance(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
}

// Configure replaces the live endpoint and keys. The live pair is rebuilt
// wholesale; on error the previous configuration stays in place.
func (s *Session) Configure(endpoint domain.Endpoint, liveKey, forkKey string) error {
	var pair *ClientPair
	if endpoint.URL != "" {
		var err error
		pair, err = s.factory.Build(endpoint.URL, liveKey)
		if err != nil {
			return err
		}
		pair.Endpoint = endpoint
	}

	s.mu.Lock()
	old := s.livePair
	s.livePair = pair
	s.liveEndpoint = endpoint
	s.liveKey = liveKey
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.fork.SetSource(endpoint)
	s.fork.SetSigningKey(forkKey)
	return nil
}

// Clients resolves the client pair for the current mode, starting the fork in
// local mode when needed
func (s *Session) Clients(ctx context.Context) (*ClientPair, domain.Mode, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, "", domain.ErrSessionClosed
	}
	mode, live := s.mode, s.livePair
	s.mu.Unlock()

	if mode.IsLocal() {
		pair, err := s.fork.EnsureClients(ctx)
		return pair, mode, err
	}
	if live == nil {
		return nil, mode, &domain.ConfigurationError{Field: "endpoint", Err: errors.New("no live RPC endpoint configured")}
	}
	return live, mode, nil
}

// Execute dispatches req on the current mode's clients and records the outcome
// for a later Trace
func (s *Session) Execute(ctx context.Context, req *domain.CallRequest) (*domain.ExecutionResult, error) {
	pair, mode, err := s.Clients(ctx)
	if err != nil {
		return nil, err
	}
	epoch := s.dashboard.Epoch(mode)

	result, err := s.pipeline.Dispatch(ctx, req, pair, mode)
	if err != nil {
		params := TraceParamsForError(req, pair.Endpoint, err)
		s.remember(&params)
		return nil, err
	}

	params := TraceParamsFor(result)
	s.remember(&params)
	s.dashboard.PublishAt(epoch, DashboardEvent{
		Kind:      EventResult,
		Mode:      mode,
		Connected: true,
		Endpoint:  pair.Endpoint.URL,
		Result:    result,
	})
	return result, nil
}

func (s *Session) remember(params *TraceParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.last = params
	}
}

// ApplyAction applies a cheat action to the fork. Local mode only.
func (s *Session) ApplyAction(ctx context.Context, action domain.Action) (*domain.Snapshot, error) {
	if !s.Mode().IsLocal() {
		return nil, domain.ErrLocalModeOnly
	}
	pair, err := s.fork.EnsureClients(ctx)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Apply(ctx, action, pair)
}

// Trace resolves a trace for params
func (s *Session) Trace(ctx context.Context, params TraceParams) (*domain.Trace, error) {
	return s.tracer.Resolve(ctx, params)
}

// TraceLast traces the most recent execution, successful or not
func (s *Session) TraceLast(ctx context.Context) (*domain.Trace, error) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return nil, &domain.TraceError{Reason: "nothing has been executed in this session"}
	}
	return s.tracer.Resolve(ctx, *last)
}

// Snapshots returns the snapshot history, oldest first
func (s *Session) Snapshots() []domain.Snapshot {
	return s.stack.List()
}

// HeadID returns the external id of the active snapshot
func (s *Session) HeadID() string {
	return s.stack.HeadID()
}

// FindSnapshot looks a snapshot up by external id, local id, or a fuzzy match
// on its label
func (s *Session) FindSnapshot(query string) (*domain.Snapshot, error) {
	if snap, ok := s.stack.Get(query); ok {
		return snap, nil
	}

	list := s.stack.List()
	labels := lo.Map(list, func(snap domain.Snapshot, _ int) string { return snap.Method })
	matches := fuzzy.Find(query, labels)
	if len(matches) == 0 {
		return nil, fmt.Errorf("snapshot %q: %w", query, domain.ErrNotFound)
	}
	// best score first, newest first among equals
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Index > matches[j].Index
	})
	snap := list[matches[0].Index]
	return &snap, nil
}

// RevertTo restores the fork to the snapshot with the given external id
func (s *Session) RevertTo(ctx context.Context, externalID string) error {
	pair := s.fork.Cached()
	if pair == nil {
		if st := s.fork.Status(ctx); !st.Running {
			return &domain.RevertError{SnapshotID: externalID, Reason: "no fork is running"}
		}
		var err error
		if pair, err = s.fork.EnsureClients(ctx); err != nil {
			return &domain.RevertError{SnapshotID: externalID, Err: err}
		}
	}
	return s.stack.RevertTo(ctx, pair.Checkpoints, externalID)
}

// StartFork forks the live endpoint, optionally at a pinned block
func (s *Session) StartFork(ctx context.Context, pinned *uint64) (domain.Endpoint, error) {
	s.mu.Lock()
	source := s.liveEndpoint
	s.mu.Unlock()

	if pinned != nil {
		source = source.WithPinnedBlock(*pinned)
	}
	s.fork.SetSource(source)
	pair, err := s.fork.EnsureClients(ctx)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return pair.Endpoint, nil
}

// StopFork stops the fork, dropping its snapshots and local dashboard data
func (s *Session) StopFork(ctx context.Context) {
	s.fork.Stop(ctx)
	s.dashboard.Purge(domain.ModeLocal)
}

// ForkStatus probes the fork service
func (s *Session) ForkStatus(ctx context.Context) domain.ForkSession {
	return s.fork.Status(ctx)
}

// Status summarizes the session
func (s *Session) Status(ctx context.Context) SessionStatus {
	s.mu.Lock()
	mode, endpoint, live := s.mode, s.liveEndpoint, s.livePair
	s.mu.Unlock()

	st := SessionStatus{
		Mode:         mode,
		LiveEndpoint: endpoint,
		Fork:         s.fork.Status(ctx),
		Snapshots:    s.stack.Len(),
		HeadID:       s.stack.HeadID(),
	}
	if live != nil {
		if _, err := live.Read.BlockNumber(ctx); err == nil {
			st.LiveConnected = true
		}
	}
	if ev, ok := s.dashboard.Latest(mode); ok {
		st.LatestBlock = ev.Block
	}
	return st
}

// Poll probes the current mode's network once and feeds the dashboard
func (s *Session) Poll(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	mode, live := s.mode, s.livePair
	s.mu.Unlock()

	epoch := s.dashboard.Epoch(mode)
	var pair *ClientPair
	if mode.IsLocal() {
		// never start a fork from a background probe
		if st := s.fork.Status(ctx); st.Running {
			if pair = s.fork.Cached(); pair == nil {
				pair, _ = s.fork.EnsureClients(ctx)
			}
		}
	} else {
		pair = live
	}

	if pair == nil {
		s.dashboard.PublishAt(epoch, DashboardEvent{Kind: EventLiveness, Mode: mode})
		return
	}

	block, err := pair.Read.BlockNumber(ctx)
	if err != nil {
		s.log.Debug("block poll failed", "mode", mode, "error", err)
		s.dashboard.PublishAt(epoch, DashboardEvent{Kind: EventLiveness, Mode: mode, Endpoint: pair.Endpoint.URL})
		return
	}
	if s.dashboard.PublishAt(epoch, DashboardEvent{Kind: EventBlock, Mode: mode, Block: block, Connected: true, Endpoint: pair.Endpoint.URL}) {
		s.metrics.SetLatestBlock(mode, block)
	}
}

// Close tears the session down. In-flight requests finish, but their results
// no longer reach the snapshot stack or dashboard. The fork is left running.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	live := s.livePair
	s.livePair = nil
	s.last = nil
	s.mu.Unlock()

	s.stack.Close()
	s.fork.Close()
	s.dashboard.Close()
	if live != nil {
		return live.Close()
	}
	return nil
}
