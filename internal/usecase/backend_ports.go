package usecase

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsmith/chasm/internal/domain"
)

// Ports used by the backend service (chasm serve)

// AnvilManager runs anvil processes
type AnvilManager interface {
	Start(ctx context.Context, instance *domain.AnvilInstance) error
	Stop(ctx context.Context, instance *domain.AnvilInstance) error
	GetStatus(ctx context.Context, instance *domain.AnvilInstance) (*domain.AnvilStatus, error)
	StreamLogs(ctx context.Context, instance *domain.AnvilInstance, writer io.Writer) error
}

// Tracer runs the external tracing tools
type Tracer interface {
	// Run replays a mined transaction (cast run)
	Run(ctx context.Context, hash common.Hash, rpcURL string) (*domain.TraceResponse, error)
	// CallTree simulates a call and renders its call tree (cast call --trace)
	CallTree(ctx context.Context, req domain.TraceCallRequest) (*domain.TraceResponse, error)
	// DebugCall returns raw debug_traceCall output
	DebugCall(ctx context.Context, req domain.TraceCallRequest) (*domain.TraceResponse, error)
}
