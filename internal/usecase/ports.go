package usecase

import (
	"context"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
)

// ChainReader is the read side of a client pair
type ChainReader interface {
	Call(ctx context.Context, req *domain.CallRequest, blockTag string) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// ChainWriter is the write side of a client pair
type ChainWriter interface {
	// Send submits the request as a transaction and returns its hash
	Send(ctx context.Context, req *domain.CallRequest) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined or ctx/transport gives up
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Checkpointer takes and restores point-in-time checkpoints of a test network
type Checkpointer interface {
	Snapshot(ctx context.Context) (string, error)
	Revert(ctx context.Context, id string) error
}

// CheatClient applies test-network-only cheat actions
type CheatClient interface {
	Apply(ctx context.Context, action domain.Action) error
}

// ClientPair is a read client plus write client bound to one endpoint.
// Pairs are never mutated; configuration changes replace them wholesale.
type ClientPair struct {
	Read        ChainReader
	Write       ChainWriter
	Checkpoints Checkpointer
	Cheats      CheatClient
	Account     *common.Address // nil when the node signs
	Endpoint    domain.Endpoint
	closer      io.Closer
}

// NewClientPair assembles a client pair
func NewClientPair(endpoint domain.Endpoint, account *common.Address, read ChainReader, write ChainWriter, checkpoints Checkpointer, cheats CheatClient, closer io.Closer) *ClientPair {
	return &ClientPair{
		Read:        read,
		Write:       write,
		Checkpoints: checkpoints,
		Cheats:      cheats,
		Account:     account,
		Endpoint:    endpoint,
		closer:      closer,
	}
}

// Close releases the underlying transport
func (p *ClientPair) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// ClientFactory builds client pairs. Building performs no network I/O.
type ClientFactory interface {
	Build(endpointURL string, signingKey string) (*ClientPair, error)
}

// ForkService is the external fork lifecycle service
type ForkService interface {
	Status(ctx context.Context) (*domain.ForkSession, error)
	Start(ctx context.Context, source domain.Endpoint) error
	Stop(ctx context.Context) error
}

// TraceService is the external trace service
type TraceService interface {
	TraceByHash(ctx context.Context, hash common.Hash, rpcURL string) (*domain.TraceResponse, error)
	TraceByCall(ctx context.Context, req domain.TraceCallRequest, flavor domain.TraceFlavor) (*domain.TraceResponse, error)
}

// LocalConfigStore handles the best-effort cache of non-sensitive settings
type LocalConfigStore interface {
	Load(ctx context.Context) (*config.LocalConfig, error)
	Save(ctx context.Context, cfg *config.LocalConfig) error
	Exists() bool
	GetPath() string
}

// MetricsRecorder receives execution telemetry
type MetricsRecorder interface {
	ObserveExecution(mode domain.Mode, kind domain.ResultKind, err error)
	ObserveSnapshot(event string)
	SetForkRunning(running bool)
	SetLatestBlock(mode domain.Mode, block uint64)
}

// NopMetrics discards all telemetry
type NopMetrics struct{}

func (NopMetrics) ObserveExecution(domain.Mode, domain.ResultKind, error) {}
func (NopMetrics) ObserveSnapshot(string)                                 {}
func (NopMetrics) SetForkRunning(bool)                                    {}
func (NopMetrics) SetLatestBlock(domain.Mode, uint64)                     {}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage   string
	Message string
	Spinner bool
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}

// InteractiveSelector asks the operator to confirm or choose
type InteractiveSelector interface {
	// Confirm asks a yes/no question; false means declined
	Confirm(ctx context.Context, prompt string) (bool, error)
	SelectSnapshot(ctx context.Context, snapshots []domain.Snapshot, prompt string) (*domain.Snapshot, error)
}

// NetworkResolver maps network names to live endpoints
type NetworkResolver interface {
	GetNetworks(ctx context.Context) []string
	ResolveNetwork(ctx context.Context, name string) (*config.Network, error)
}
