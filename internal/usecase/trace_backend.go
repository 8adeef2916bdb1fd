package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsmith/chasm/internal/domain"
)

// TraceBackend serves the trace endpoints by running the external tracers
type TraceBackend struct {
	tracer     Tracer
	defaultRPC string
	log        *slog.Logger
}

// NewTraceBackend creates a trace backend. defaultRPC is used when a request
// does not name an endpoint.
func NewTraceBackend(tracer Tracer, defaultRPC string, log *slog.Logger) *TraceBackend {
	return &TraceBackend{tracer: tracer, defaultRPC: defaultRPC, log: log}
}

// TraceByHash replays a mined transaction
func (b *TraceBackend) TraceByHash(ctx context.Context, hash common.Hash, rpcURL string) (*domain.TraceResponse, error) {
	if rpcURL == "" {
		rpcURL = b.defaultRPC
	}
	b.log.Info("tracing transaction", "hash", hash.Hex(), "rpc_url", rpcURL)
	return b.tracer.Run(ctx, hash, rpcURL)
}

// TraceByCall simulates a call with the requested tracer
func (b *TraceBackend) TraceByCall(ctx context.Context, req domain.TraceCallRequest, flavor domain.TraceFlavor) (*domain.TraceResponse, error) {
	if req.RPCURL == "" {
		req.RPCURL = b.defaultRPC
	}
	if req.BlockTag == "" {
		req.BlockTag = domain.BlockTagLatest
	}
	b.log.Info("tracing call", "to", req.Call.To, "rpc_url", req.RPCURL, "flavor", flavor)

	switch flavor {
	case domain.TraceCallTree, "":
		return b.tracer.CallTree(ctx, req)
	case domain.TraceDebug:
		return b.tracer.DebugCall(ctx, req)
	default:
		return nil, fmt.Errorf("unknown trace flavor %q", flavor)
	}
}
