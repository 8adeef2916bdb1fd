package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsmith/chasm/internal/domain"
)

// TraceParams describes what is known about the action to trace
type TraceParams struct {
	Hash     *common.Hash
	Call     *domain.CallRequest
	HadError bool
	Endpoint domain.Endpoint
}

// TraceParamsFor builds trace params from a finished execution
func TraceParamsFor(result *domain.ExecutionResult) TraceParams {
	call := result.Call
	return TraceParams{
		Hash:     result.TxHash,
		Call:     &call,
		HadError: result.Reverted,
		Endpoint: result.Endpoint,
	}
}

// TraceParamsForError builds trace params from a failed execution of call
// against endpoint
func TraceParamsForError(call *domain.CallRequest, endpoint domain.Endpoint, err error) TraceParams {
	params := TraceParams{Call: call, HadError: true, Endpoint: endpoint}
	if hash := domain.RecoverTxHash(err); hash != nil {
		params.Hash = hash
	}
	return params
}

// TraceResolver fetches execution traces from the trace service
type TraceResolver struct {
	service TraceService
	flavor  domain.TraceFlavor
	log     *slog.Logger
}

// NewTraceResolver creates a resolver using flavor for call-based traces
func NewTraceResolver(service TraceService, flavor domain.TraceFlavor, log *slog.Logger) *TraceResolver {
	if flavor == "" {
		flavor = domain.TraceCallTree
	}
	return &TraceResolver{service: service, flavor: flavor, log: log}
}

// Resolve traces a confirmed transaction by hash, or replays the call at latest
// when the action failed or never got a hash. The trace always runs against
// params.Endpoint.
func (r *TraceResolver) Resolve(ctx context.Context, params TraceParams) (*domain.Trace, error) {
	if params.Endpoint.URL == "" {
		return nil, &domain.TraceError{Reason: "no endpoint recorded for the action"}
	}

	switch {
	case !params.HadError && params.Hash != nil:
		return r.byHash(ctx, *params.Hash, params.Endpoint)
	case params.Call != nil:
		return r.byCall(ctx, params.Call, params.Endpoint)
	default:
		return nil, &domain.TraceError{Reason: "neither a transaction hash nor a call description is available"}
	}
}

func (r *TraceResolver) byHash(ctx context.Context, hash common.Hash, endpoint domain.Endpoint) (*domain.Trace, error) {
	r.log.Debug("tracing transaction", "hash", hash.Hex(), "endpoint", endpoint.URL)
	resp, err := r.service.TraceByHash(ctx, hash, endpoint.URL)
	return r.finish(domain.TraceByHash, endpoint, resp, err)
}

func (r *TraceResolver) byCall(ctx context.Context, call *domain.CallRequest, endpoint domain.Endpoint) (*domain.Trace, error) {
	replay := *call
	// replay the failed call as-is, regardless of its mutability
	replay.Mutability = domain.MutabilityNonPayable
	env, err := ToRaw(&replay)
	if err != nil {
		return nil, &domain.TraceError{Reason: "cannot describe the call", Err: err}
	}

	req := domain.TraceCallRequest{
		RPCURL:   endpoint.URL,
		Call:     env.Params.Call,
		BlockTag: domain.BlockTagLatest,
	}
	r.log.Debug("tracing call", "to", req.Call.To, "endpoint", endpoint.URL, "flavor", r.flavor)
	resp, err := r.service.TraceByCall(ctx, req, r.flavor)
	return r.finish(domain.TraceByCall, endpoint, resp, err)
}

func (r *TraceResolver) finish(kind domain.TraceKind, endpoint domain.Endpoint, resp *domain.TraceResponse, err error) (*domain.Trace, error) {
	if err != nil {
		return nil, &domain.TraceError{Reason: "trace service request failed", Err: err}
	}
	if resp == nil {
		return nil, &domain.TraceError{Reason: "empty response from trace service"}
	}
	if resp.Error != "" {
		return nil, &domain.TraceError{Reason: strings.TrimSpace(resp.Error)}
	}
	return &domain.Trace{
		Kind:     kind,
		Endpoint: endpoint.URL,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}, nil
}
