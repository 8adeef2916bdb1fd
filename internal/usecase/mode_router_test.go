package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

type sessionFixture struct {
	session *usecase.Session
	factory *fakeFactory
	fork    *fakeForkService
	tracer  *MockTraceService
}

func newSessionFixture(t *testing.T, mode domain.Mode) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		factory: newFakeFactory(),
		fork:    &fakeForkService{port: 9000},
		tracer:  &MockTraceService{},
	}
	session, err := usecase.NewSession(
		usecase.SessionConfig{Mode: mode, LiveEndpoint: domain.NewEndpoint(sourceURL)},
		f.factory, f.fork, f.tracer, domain.TraceCallTree, nil, nil, discardLogger(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	f.session = session
	return f
}

func transferReq() *domain.CallRequest {
	return &domain.CallRequest{To: &tokenAddr, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}, Mutability: domain.MutabilityNonPayable, Method: "transfer"}
}

func TestSession_Modes(t *testing.T) {
	ctx := context.Background()

	t.Run("entering local mode is lazy", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)

		require.NoError(t, f.session.SetMode(domain.ModeLocal))
		assert.Equal(t, int32(0), f.fork.starts.Load())

		result, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)

		assert.Equal(t, int32(1), f.fork.starts.Load())
		assert.Equal(t, domain.ModeLocal, result.Mode)
		assert.Equal(t, "http://127.0.0.1:9000", result.Endpoint.URL)
		assert.Len(t, f.session.Snapshots(), 2)
	})

	t.Run("live execution never touches the fork", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)

		result, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)

		assert.Equal(t, domain.ModeLive, result.Mode)
		assert.Equal(t, sourceURL, result.Endpoint.URL)
		assert.Equal(t, int32(0), f.fork.starts.Load())
		assert.Empty(t, f.session.Snapshots())
	})

	t.Run("leaving local purges local data but keeps snapshots", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		_, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)
		f.session.Poll(ctx)
		require.NotEmpty(t, f.session.Dashboard().Events(domain.ModeLocal))

		require.NoError(t, f.session.SetMode(domain.ModeLive))

		assert.Empty(t, f.session.Dashboard().Events(domain.ModeLocal))
		assert.Len(t, f.session.Snapshots(), 2)
	})

	t.Run("dashboard events are tagged with their mode", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)
		f.factory.Pair(sourceURL).reader.block.Store(20_000_000)

		f.session.Poll(ctx)

		live := f.session.Dashboard().Events(domain.ModeLive)
		require.Len(t, live, 1)
		assert.Equal(t, usecase.EventBlock, live[0].Kind)
		assert.Equal(t, uint64(20_000_000), live[0].Block)
		assert.Empty(t, f.session.Dashboard().Events(domain.ModeLocal))
	})

	t.Run("local poll does not start a fork", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)

		f.session.Poll(ctx)

		assert.Equal(t, int32(0), f.fork.starts.Load())
		events := f.session.Dashboard().Events(domain.ModeLocal)
		require.Len(t, events, 1)
		assert.Equal(t, usecase.EventLiveness, events[0].Kind)
		assert.False(t, events[0].Connected)
	})

	t.Run("opening an instance with another mode switches", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)

		mode, err := f.session.OpenInstance("tab-1", domain.ModeLocal)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeLocal, mode)
		assert.Equal(t, domain.ModeLocal, f.session.Mode())

		mode, err = f.session.OpenInstance("tab-2", "")
		require.NoError(t, err)
		assert.Equal(t, domain.ModeLocal, mode)
	})

	t.Run("rejects unknown modes", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)
		assert.Error(t, f.session.SetMode("mainnet"))
	})
}

func TestSession_Configure(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuilds the live pair", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)

		require.NoError(t, f.session.Configure(domain.NewEndpoint("https://other.example.org"), "", ""))
		result, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)
		assert.Equal(t, "https://other.example.org", result.Endpoint.URL)
	})

	t.Run("bad configuration keeps the previous pair", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)
		f.factory.err = &domain.ConfigurationError{Field: "signing key", Err: errors.New("invalid hex")}

		err := f.session.Configure(domain.NewEndpoint("https://other.example.org"), "zz", "")
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)

		f.factory.err = nil
		result, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)
		assert.Equal(t, sourceURL, result.Endpoint.URL)
	})

	t.Run("no live endpoint is a configuration error", func(t *testing.T) {
		session, err := usecase.NewSession(usecase.SessionConfig{}, newFakeFactory(), &fakeForkService{}, &MockTraceService{}, "", nil, nil, discardLogger())
		require.NoError(t, err)
		defer session.Close()

		_, err = session.Execute(ctx, transferReq())
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestSession_Actions(t *testing.T) {
	ctx := context.Background()

	t.Run("actions need local mode", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)
		_, err := f.session.ApplyAction(ctx, domain.Warp{Timestamp: 1_700_000_000})
		assert.ErrorIs(t, err, domain.ErrLocalModeOnly)
	})

	t.Run("actions are snapshotted", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)

		snap, err := f.session.ApplyAction(ctx, domain.Warp{Timestamp: 1_700_000_000})
		require.NoError(t, err)
		assert.Equal(t, "warp 1700000000", snap.Method)
		assert.Equal(t, snap.ID, f.session.HeadID())
	})
}

func TestSession_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("revert by label", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		_, err := f.session.ApplyAction(ctx, domain.Roll{Blocks: 1})
		require.NoError(t, err)
		_, err = f.session.Execute(ctx, transferReq())
		require.NoError(t, err)
		_, err = f.session.ApplyAction(ctx, domain.Warp{Timestamp: 42})
		require.NoError(t, err)
		require.Len(t, f.session.Snapshots(), 4)

		snap, err := f.session.FindSnapshot("transfer")
		require.NoError(t, err)
		require.NoError(t, f.session.RevertTo(ctx, snap.ID))

		list := f.session.Snapshots()
		require.Len(t, list, 3)
		assert.Equal(t, "transfer", list[2].Method)
		assert.Equal(t, snap.ID, f.session.HeadID())
	})

	t.Run("lookup by local id", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		_, err := f.session.ApplyAction(ctx, domain.Roll{Blocks: 1})
		require.NoError(t, err)

		snap, err := f.session.FindSnapshot("snap-1")
		require.NoError(t, err)
		assert.True(t, snap.Synthetic)

		_, err = f.session.FindSnapshot("zzzz")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("revert without a fork fails", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		err := f.session.RevertTo(ctx, "0x1")
		var revertErr *domain.RevertError
		assert.ErrorAs(t, err, &revertErr)
	})

	t.Run("stopping the fork drops snapshots", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		_, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)

		f.session.StopFork(ctx)

		assert.Empty(t, f.session.Snapshots())
		assert.Equal(t, int32(1), f.fork.stops.Load())
		assert.False(t, f.session.ForkStatus(ctx).Running)
	})
}

func TestSession_Trace(t *testing.T) {
	ctx := context.Background()

	t.Run("failed submission is traced by call", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		_, err := f.session.StartFork(ctx, nil)
		require.NoError(t, err)
		f.factory.Pair("http://127.0.0.1:9000").writer.sendErr = errors.New("insufficient funds")

		_, err = f.session.Execute(ctx, transferReq())
		require.Error(t, err)

		f.tracer.On("TraceByCall", mock.Anything, mock.MatchedBy(func(req domain.TraceCallRequest) bool {
			return req.RPCURL == "http://127.0.0.1:9000"
		}), domain.TraceCallTree).Return(&domain.TraceResponse{Stdout: "trace"}, nil)

		trace, err := f.session.TraceLast(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.TraceByCall, trace.Kind)
		f.tracer.AssertNotCalled(t, "TraceByHash", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("trace follows the endpoint of the result across fork restarts", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLocal)
		result, err := f.session.Execute(ctx, transferReq())
		require.NoError(t, err)

		f.session.StopFork(ctx)
		f.fork.mu.Lock()
		f.fork.port = 9001
		f.fork.mu.Unlock()
		_, err = f.session.StartFork(ctx, nil)
		require.NoError(t, err)

		f.tracer.On("TraceByHash", mock.Anything, *result.TxHash, "http://127.0.0.1:9000").Return(&domain.TraceResponse{Stdout: "ok"}, nil)

		_, err = f.session.Trace(ctx, usecase.TraceParamsFor(result))
		require.NoError(t, err)
		f.tracer.AssertExpectations(t)
	})

	t.Run("nothing executed", func(t *testing.T) {
		f := newSessionFixture(t, domain.ModeLive)
		_, err := f.session.TraceLast(ctx)
		var traceErr *domain.TraceError
		assert.ErrorAs(t, err, &traceErr)
	})
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, domain.ModeLocal)
	_, err := f.session.Execute(ctx, transferReq())
	require.NoError(t, err)

	require.NoError(t, f.session.Close())

	_, err = f.session.Execute(ctx, transferReq())
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.Empty(t, f.session.Snapshots())
	assert.ErrorIs(t, f.session.SetMode(domain.ModeLive), domain.ErrSessionClosed)
}
