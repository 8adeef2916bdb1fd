package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// Reader is the read side of a client pair
type Reader struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// Call runs eth_call with the same call object the raw view of req shows
func (r *Reader) Call(ctx context.Context, req *domain.CallRequest, blockTag string) ([]byte, error) {
	view := *req
	view.Mutability = domain.MutabilityView
	view.BlockTag = blockTag
	env, err := usecase.ToRaw(&view)
	if err != nil {
		return nil, err
	}

	var out hexutil.Bytes
	if err := r.rpc.CallContext(ctx, &out, domain.MethodCall, env.Params.Call, blockTag); err != nil {
		return nil, err
	}
	return out, nil
}

// BlockNumber returns the latest block number
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	return r.eth.BlockNumber(ctx)
}

// TransactionReceipt returns the receipt of a mined transaction
func (r *Reader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return r.eth.TransactionReceipt(ctx, hash)
}

// TransactionByHash returns a transaction by hash
func (r *Reader) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	tx, _, err := r.eth.TransactionByHash(ctx, hash)
	return tx, err
}

// ChainID returns the chain id
func (r *Reader) ChainID(ctx context.Context) (*big.Int, error) {
	return r.eth.ChainID(ctx)
}

var _ usecase.ChainReader = (*Reader)(nil)
