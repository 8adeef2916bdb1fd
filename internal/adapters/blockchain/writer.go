package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// Writer is the write side of a client pair. With a key it signs locally and
// sends raw transactions; without one, or when the request names a different
// sender, the node signs via eth_sendTransaction.
type Writer struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	key     *ecdsa.PrivateKey
	account *common.Address
	poll    time.Duration
	log     *slog.Logger
}

// Send submits req and returns the transaction hash
func (w *Writer) Send(ctx context.Context, req *domain.CallRequest) (common.Hash, error) {
	if w.key == nil || (req.From != nil && *req.From != *w.account) {
		return w.sendUnsigned(ctx, req)
	}
	return w.sendSigned(ctx, req)
}

func (w *Writer) sendUnsigned(ctx context.Context, req *domain.CallRequest) (common.Hash, error) {
	send := *req
	send.Mutability = domain.MutabilityNonPayable
	env, err := usecase.ToRaw(&send)
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	if err := w.rpc.CallContext(ctx, &hash, domain.MethodSendTransaction, env.Params.Call); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (w *Writer) sendSigned(ctx context.Context, req *domain.CallRequest) (common.Hash, error) {
	from := *w.account
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	chainID, err := w.eth.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain ID: %w", err)
	}
	nonce, err := w.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gas := req.Gas
	if gas == 0 {
		gas, err = w.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx, err := w.buildTx(ctx, chainID, nonce, gas, value, req)
	if err != nil {
		return common.Hash{}, err
	}

	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign tx: %w", err)
	}

	if err := w.eth.SendTransaction(ctx, signed); err != nil {
		// the hash is known locally, keep it in the error so the failure can be traced
		return common.Hash{}, fmt.Errorf("failed to send tx %s: %w", signed.Hash().Hex(), err)
	}
	w.log.Debug("transaction sent", "hash", signed.Hash().Hex(), "nonce", nonce, "gas", gas)
	return signed.Hash(), nil
}

func (w *Writer) buildTx(ctx context.Context, chainID *big.Int, nonce, gas uint64, value *big.Int, req *domain.CallRequest) (*types.Transaction, error) {
	head, err := w.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := w.eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		}), nil
	}

	tip, err := w.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	}), nil
}

// WaitReceipt polls for the receipt until it is found or ctx ends. Transport
// errors other than not-found are returned as they are.
func (w *Writer) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		receipt, err := w.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ usecase.ChainWriter = (*Writer)(nil)
