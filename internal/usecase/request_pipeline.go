package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsmith/chasm/internal/domain"
)

// ToRaw builds the canonical JSON-RPC envelope for a call request. Reads become
// eth_call at the request's block tag, everything else eth_sendTransaction.
// The request's id is reused when it came from an envelope.
func ToRaw(req *domain.CallRequest) (domain.Envelope, error) {
	if req == nil {
		return domain.Envelope{}, errors.New("nil call request")
	}

	call := domain.CallObject{}
	if req.From != nil {
		call.From = hexAddress(*req.From)
	}
	if req.To != nil {
		call.To = hexAddress(*req.To)
	}
	if req.Gas > 0 {
		call.Gas = hexutil.EncodeUint64(req.Gas)
	}
	if len(req.Data) > 0 {
		call.Data = hexutil.Encode(req.Data)
	}

	env := domain.Envelope{
		JSONRPC: domain.JSONRPCVersion,
		ID:      json.RawMessage(domain.DefaultRequestID),
	}
	if len(req.RequestID) > 0 {
		env.ID = append(json.RawMessage(nil), req.RequestID...)
	}

	if req.IsRead() {
		env.Method = domain.MethodCall
		env.Params.BlockTag = req.BlockTag
		if env.Params.BlockTag == "" {
			env.Params.BlockTag = domain.BlockTagLatest
		}
		if req.Value != nil {
			call.Value = hexutil.EncodeBig(req.Value)
		}
	} else {
		env.Method = domain.MethodSendTransaction
		value := req.Value
		if value == nil {
			value = new(big.Int)
		}
		if value.Sign() < 0 {
			return domain.Envelope{}, fmt.Errorf("negative value %s", value)
		}
		call.Value = hexutil.EncodeBig(value)
	}

	env.Params.Call = call
	return env, nil
}

// FromRaw decomposes an envelope into a call request. Quantities may be hex or
// decimal. Method and Args are only recovered when contract is given; without
// it only the raw calldata is kept.
func FromRaw(env domain.Envelope, contract *abi.ABI) (*domain.CallRequest, error) {
	if env.JSONRPC != "" && env.JSONRPC != domain.JSONRPCVersion {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", env.JSONRPC)
	}

	call := env.Params.Call
	req := &domain.CallRequest{Authoring: domain.AuthoringRaw}
	if len(env.ID) > 0 {
		req.RequestID = append(json.RawMessage(nil), env.ID...)
	}

	var err error
	if req.From, err = parseAddress("from", call.From); err != nil {
		return nil, err
	}
	if req.To, err = parseAddress("to", call.To); err != nil {
		return nil, err
	}
	if call.Gas != "" {
		gas, ok := math.ParseUint64(strings.TrimSpace(call.Gas))
		if !ok {
			return nil, fmt.Errorf("invalid gas %q", call.Gas)
		}
		req.Gas = gas
	}
	if call.Value != "" {
		value, ok := math.ParseBig256(strings.TrimSpace(call.Value))
		if !ok {
			return nil, fmt.Errorf("invalid value %q", call.Value)
		}
		req.Value = value
	}
	if call.Data != "" && call.Data != "0x" {
		data, err := hexutil.Decode(call.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		req.Data = data
	}

	switch env.Method {
	case domain.MethodCall:
		if req.To == nil {
			return nil, errors.New("eth_call requires a target address")
		}
		req.Mutability = domain.MutabilityView
		req.BlockTag = env.Params.BlockTag
	case domain.MethodSendTransaction:
		req.Mutability = domain.MutabilityNonPayable
		if req.Value != nil && req.Value.Sign() > 0 {
			req.Mutability = domain.MutabilityPayable
		}
	default:
		return nil, fmt.Errorf("unsupported method %q", env.Method)
	}

	if contract != nil && req.To != nil && len(req.Data) >= 4 {
		method, err := contract.MethodById(req.Data[:4])
		if err != nil {
			return nil, fmt.Errorf("calldata does not match the contract interface: %w", err)
		}
		args, err := method.Inputs.Unpack(req.Data[4:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s arguments: %w", method.Name, err)
		}
		req.Method = method.Name
		req.Args = args
	}

	return req, nil
}

func hexAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func parseAddress(field, s string) (*common.Address, error) {
	if s == "" {
		return nil, nil
	}
	if !common.IsHexAddress(s) {
		return nil, fmt.Errorf("invalid %s address %q: %w", field, s, domain.ErrInvalidAddress)
	}
	addr := common.HexToAddress(s)
	return &addr, nil
}

// RequestPipeline dispatches call requests against a client pair and keeps the
// snapshot stack in step with mutating local actions
type RequestPipeline struct {
	stack    *SnapshotStack
	metrics  MetricsRecorder
	progress ProgressSink
	log      *slog.Logger
}

// NewRequestPipeline creates a pipeline recording into stack
func NewRequestPipeline(stack *SnapshotStack, metrics MetricsRecorder, progress ProgressSink, log *slog.Logger) *RequestPipeline {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if progress == nil {
		progress = NopProgress{}
	}
	return &RequestPipeline{
		stack:    stack,
		metrics:  metrics,
		progress: progress,
		log:      log,
	}
}

// Dispatch executes req. Reads are a single round trip. Writes in local mode
// are checkpointed before submission and the checkpoint is settled once the
// receipt is in. Transport timeouts are returned as they come.
func (p *RequestPipeline) Dispatch(ctx context.Context, req *domain.CallRequest, pair *ClientPair, mode domain.Mode) (*domain.ExecutionResult, error) {
	if req == nil {
		return nil, errors.New("nil call request")
	}
	if pair == nil {
		return nil, errors.New("no client pair")
	}

	if req.IsRead() {
		result, err := p.read(ctx, req, pair, mode)
		p.metrics.ObserveExecution(mode, domain.ResultRead, err)
		return result, err
	}

	result, err := p.write(ctx, req, pair, mode)
	p.metrics.ObserveExecution(mode, domain.ResultTransaction, err)
	return result, err
}

func (p *RequestPipeline) read(ctx context.Context, req *domain.CallRequest, pair *ClientPair, mode domain.Mode) (*domain.ExecutionResult, error) {
	tag := req.BlockTag
	if tag == "" {
		tag = domain.BlockTagLatest
	}

	data, err := pair.Read.Call(ctx, req, tag)
	if err != nil {
		return nil, &domain.ExecutionError{Stage: "call", Err: err}
	}

	return &domain.ExecutionResult{
		Kind:       domain.ResultRead,
		Mode:       mode,
		Endpoint:   pair.Endpoint,
		Call:       *req,
		ReturnData: data,
	}, nil
}

func (p *RequestPipeline) write(ctx context.Context, req *domain.CallRequest, pair *ClientPair, mode domain.Mode) (*domain.ExecutionResult, error) {
	if req.From == nil && pair.Account != nil {
		filled := *req
		from := *pair.Account
		filled.From = &from
		req = &filled
	}

	result := &domain.ExecutionResult{
		Kind:     domain.ResultTransaction,
		Mode:     mode,
		Endpoint: pair.Endpoint,
		Call:     *req,
	}

	var snap *domain.Snapshot
	if mode.IsLocal() {
		var err error
		snap, err = p.checkpoint(ctx, pair, req.ActionInfo())
		if err != nil {
			return nil, err
		}
		result.SnapshotLocalID = snap.LocalID
	}

	p.progress.OnProgress(ctx, ProgressEvent{Stage: "submit", Message: "Submitting " + req.Label(), Spinner: true})
	hash, err := pair.Write.Send(ctx, req)
	if err != nil {
		recovered := domain.RecoverTxHash(err)
		p.settle(snap, domain.Failed(recovered))
		p.progress.Error("submission failed")
		return nil, &domain.ExecutionError{Stage: "submit", Hash: recovered, Err: err}
	}
	result.Stage = domain.TxSubmitted
	result.TxHash = &hash

	p.progress.OnProgress(ctx, ProgressEvent{Stage: "receipt", Message: "Waiting for " + hash.Hex(), Spinner: true})
	receipt, err := pair.Write.WaitReceipt(ctx, hash)
	if err != nil {
		p.settle(snap, domain.Failed(&hash))
		p.progress.Error("receipt wait failed")
		return nil, &domain.ExecutionError{Stage: "receipt", Hash: &hash, Err: err}
	}
	result.Stage = domain.TxReceiptFetched
	result.Receipt = receipt

	if tx, err := pair.Read.TransactionByHash(ctx, hash); err == nil {
		result.Transaction = tx
	} else {
		p.log.Debug("failed to fetch submitted transaction", "hash", hash.Hex(), "error", err)
	}

	block := result.BlockNumber()
	if receipt.Status == types.ReceiptStatusFailed {
		result.Reverted = true
		patch := domain.Failed(&hash)
		patch.BlockNumber = &block
		p.settle(snap, patch)
		p.progress.Info(fmt.Sprintf("%s reverted in block %d", hash.Hex(), block))
	} else {
		p.settle(snap, domain.Confirmed(hash, block))
		p.progress.Info(fmt.Sprintf("%s mined in block %d", hash.Hex(), block))
	}

	return result, nil
}

// checkpoint records the pre-call snapshot, preceded by the one-off initial
// state capture when the stack is empty
func (p *RequestPipeline) checkpoint(ctx context.Context, pair *ClientPair, info domain.ActionInfo) (*domain.Snapshot, error) {
	if p.stack == nil {
		return nil, domain.ErrNoCheckpointer
	}
	if _, err := p.stack.EnsureInitial(ctx, pair.Checkpoints); err != nil {
		return nil, fmt.Errorf("failed to capture initial state: %w", err)
	}
	snap, err := p.stack.Record(ctx, pair.Checkpoints, info)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot before %s: %w", info.Method, err)
	}
	return snap, nil
}

func (p *RequestPipeline) settle(snap *domain.Snapshot, patch domain.SnapshotPatch) {
	if snap == nil {
		return
	}
	if !p.stack.Update(snap.LocalID, patch) {
		p.log.Debug("snapshot gone before it settled", "local_id", snap.LocalID)
	}
}

// Apply executes a cheat action against the local network, checkpointing it
// like any mutating call
func (p *RequestPipeline) Apply(ctx context.Context, action domain.Action, pair *ClientPair) (*domain.Snapshot, error) {
	if pair == nil || pair.Cheats == nil {
		return nil, domain.ErrLocalModeOnly
	}

	snap, err := p.checkpoint(ctx, pair, domain.ActionInfo{
		Method: domain.ActionLabel(action),
		To:     action.Target(),
	})
	if err != nil {
		return nil, err
	}

	if err := pair.Cheats.Apply(ctx, action); err != nil {
		p.settle(snap, domain.Failed(nil))
		p.metrics.ObserveExecution(domain.ModeLocal, domain.ResultTransaction, err)
		return nil, fmt.Errorf("failed to apply %s: %w", action.Kind(), err)
	}

	status := domain.SnapshotConfirmed
	patch := domain.SnapshotPatch{Status: &status}
	if block, err := pair.Read.BlockNumber(ctx); err == nil {
		patch.BlockNumber = &block
	}
	p.settle(snap, patch)
	p.metrics.ObserveExecution(domain.ModeLocal, domain.ResultTransaction, nil)

	if updated, ok := p.stack.Get(snap.LocalID); ok {
		return updated, nil
	}
	return snap, nil
}
