package usecase_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

func TestTraceResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	forkA := domain.NewEndpoint("http://127.0.0.1:9000")
	hash := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	call := &domain.CallRequest{To: &tokenAddr, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}, Value: big.NewInt(10), Mutability: domain.MutabilityPayable}

	t.Run("successful transaction traces by hash", func(t *testing.T) {
		service := &MockTraceService{}
		service.On("TraceByHash", mock.Anything, hash, forkA.URL).Return(&domain.TraceResponse{Stdout: "Traces:\n  [21000] ..."}, nil)

		r := usecase.NewTraceResolver(service, "", discardLogger())
		trace, err := r.Resolve(ctx, usecase.TraceParams{Hash: &hash, Call: call, Endpoint: forkA})
		require.NoError(t, err)

		assert.Equal(t, domain.TraceByHash, trace.Kind)
		assert.Equal(t, forkA.URL, trace.Endpoint)
		assert.Contains(t, trace.Text(), "Traces:")
		service.AssertNotCalled(t, "TraceByCall", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure before a hash replays the call at latest", func(t *testing.T) {
		service := &MockTraceService{}
		service.On("TraceByCall", mock.Anything, mock.MatchedBy(func(req domain.TraceCallRequest) bool {
			return req.RPCURL == forkA.URL &&
				req.BlockTag == domain.BlockTagLatest &&
				req.Call.To == "0x5fbdb2315678afecb367f032d93f642f64180aa3" &&
				req.Call.Value == "0xa" &&
				req.Call.Data == "0xa9059cbb"
		}), domain.TraceCallTree).Return(&domain.TraceResponse{Stdout: "revert"}, nil)

		r := usecase.NewTraceResolver(service, domain.TraceCallTree, discardLogger())
		params := usecase.TraceParamsForError(call, forkA, errors.New("execution reverted"))
		trace, err := r.Resolve(ctx, params)
		require.NoError(t, err)

		assert.Equal(t, domain.TraceByCall, trace.Kind)
		service.AssertNotCalled(t, "TraceByHash", mock.Anything, mock.Anything, mock.Anything)
		service.AssertExpectations(t)
	})

	t.Run("error with a hash still replays the call", func(t *testing.T) {
		service := &MockTraceService{}
		service.On("TraceByCall", mock.Anything, mock.Anything, domain.TraceDebug).Return(&domain.TraceResponse{Stdout: "{}"}, nil)

		r := usecase.NewTraceResolver(service, domain.TraceDebug, discardLogger())
		trace, err := r.Resolve(ctx, usecase.TraceParams{Hash: &hash, Call: call, HadError: true, Endpoint: forkA})
		require.NoError(t, err)
		assert.Equal(t, domain.TraceByCall, trace.Kind)
	})

	t.Run("mined revert replays the call", func(t *testing.T) {
		service := &MockTraceService{}
		service.On("TraceByCall", mock.Anything, mock.Anything, domain.TraceCallTree).Return(&domain.TraceResponse{Stdout: "revert"}, nil)

		r := usecase.NewTraceResolver(service, "", discardLogger())
		params := usecase.TraceParamsFor(&domain.ExecutionResult{TxHash: &hash, Call: *call, Reverted: true, Endpoint: forkA})
		_, err := r.Resolve(ctx, params)
		require.NoError(t, err)
		service.AssertNumberOfCalls(t, "TraceByCall", 1)
	})

	t.Run("uses the endpoint recorded with the result", func(t *testing.T) {
		service := &MockTraceService{}
		service.On("TraceByHash", mock.Anything, hash, forkA.URL).Return(&domain.TraceResponse{Stdout: "ok"}, nil)

		r := usecase.NewTraceResolver(service, "", discardLogger())
		result := &domain.ExecutionResult{TxHash: &hash, Endpoint: forkA}
		_, err := r.Resolve(ctx, usecase.TraceParamsFor(result))
		require.NoError(t, err)
		service.AssertCalled(t, "TraceByHash", mock.Anything, hash, forkA.URL)
	})

	t.Run("nothing to trace fails fast", func(t *testing.T) {
		service := &MockTraceService{}
		r := usecase.NewTraceResolver(service, "", discardLogger())

		_, err := r.Resolve(ctx, usecase.TraceParams{HadError: true, Endpoint: forkA})
		var traceErr *domain.TraceError
		require.ErrorAs(t, err, &traceErr)
		service.AssertNotCalled(t, "TraceByHash", mock.Anything, mock.Anything, mock.Anything)
		service.AssertNotCalled(t, "TraceByCall", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("service error body becomes a trace error", func(t *testing.T) {
		service := &MockTraceService{}
		service.On("TraceByHash", mock.Anything, hash, forkA.URL).Return(&domain.TraceResponse{Error: "transaction not found\n"}, nil)

		r := usecase.NewTraceResolver(service, "", discardLogger())
		_, err := r.Resolve(ctx, usecase.TraceParams{Hash: &hash, Endpoint: forkA})

		var traceErr *domain.TraceError
		require.ErrorAs(t, err, &traceErr)
		assert.Equal(t, "transaction not found", traceErr.Reason)
	})
}
