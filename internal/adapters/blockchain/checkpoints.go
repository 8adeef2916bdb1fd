package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// Checkpointer takes and restores evm_snapshot checkpoints
type Checkpointer struct {
	rpc *rpc.Client
}

// Snapshot takes a checkpoint and returns its id
func (c *Checkpointer) Snapshot(ctx context.Context) (string, error) {
	var id string
	if err := c.rpc.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("evm_snapshot failed: %w", err)
	}
	return id, nil
}

// Revert restores a checkpoint. The node consumes the id.
func (c *Checkpointer) Revert(ctx context.Context, id string) error {
	var ok bool
	if err := c.rpc.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return fmt.Errorf("evm_revert failed: %w", err)
	}
	if !ok {
		return errors.New("evm_revert returned false")
	}
	return nil
}

// CheatClient applies cheat actions through the anvil_* and evm_* methods
type CheatClient struct {
	rpc *rpc.Client
}

// Apply sends each RPC call of the action in order
func (c *CheatClient) Apply(ctx context.Context, action domain.Action) error {
	for _, call := range action.Calls() {
		var result any
		if err := c.rpc.CallContext(ctx, &result, call.Method, call.Params...); err != nil {
			return fmt.Errorf("%s failed: %w", call.Method, err)
		}
	}
	return nil
}

var (
	_ usecase.Checkpointer = (*Checkpointer)(nil)
	_ usecase.CheatClient  = (*CheatClient)(nil)
)
