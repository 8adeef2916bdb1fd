package usecase_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCheckpointer hands out sequential hex ids like anvil does
type fakeCheckpointer struct {
	mu        sync.Mutex
	next      int
	taken     []string
	reverted  []string
	revertErr error
	snapErr   error
}

func (f *fakeCheckpointer) Snapshot(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return "", f.snapErr
	}
	id := fmt.Sprintf("0x%x", f.next)
	f.next++
	f.taken = append(f.taken, id)
	return id, nil
}

func (f *fakeCheckpointer) Revert(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revertErr != nil {
		return f.revertErr
	}
	f.reverted = append(f.reverted, id)
	return nil
}

func (f *fakeCheckpointer) Taken() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.taken)
}

// fakeReader answers reads from canned values
type fakeReader struct {
	returnData []byte
	callErr    error
	block      atomic.Uint64
	blockErr   error
	calls      atomic.Int32
}

func (f *fakeReader) Call(ctx context.Context, req *domain.CallRequest, blockTag string) ([]byte, error) {
	f.calls.Add(1)
	return f.returnData, f.callErr
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	if f.blockErr != nil {
		return 0, f.blockErr
	}
	return f.block.Load(), nil
}

func (f *fakeReader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeReader) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	return types.NewTx(&types.LegacyTx{Nonce: 7}), nil
}

func (f *fakeReader) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

// fakeWriter records submissions and returns a receipt in block 100
type fakeWriter struct {
	mu       sync.Mutex
	sent     []*domain.CallRequest
	hash     common.Hash
	sendErr  error
	waitErr  error
	status   uint64
	onSend   func()
	blockNum uint64
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		hash:     common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001"),
		status:   types.ReceiptStatusSuccessful,
		blockNum: 100,
	}
}

func (f *fakeWriter) Send(ctx context.Context, req *domain.CallRequest) (common.Hash, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		onSend()
	}
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return f.hash, nil
}

func (f *fakeWriter) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{
		Status:      f.status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(f.blockNum),
	}, nil
}

func (f *fakeWriter) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeCheats records applied actions
type fakeCheats struct {
	mu      sync.Mutex
	applied []domain.Action
	err     error
}

func (f *fakeCheats) Apply(ctx context.Context, action domain.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, action)
	return nil
}

// testPair bundles the fakes behind one client pair
type testPair struct {
	*usecase.ClientPair
	reader *fakeReader
	writer *fakeWriter
	cp     *fakeCheckpointer
	cheats *fakeCheats
}

func newTestPair(url string) *testPair {
	tp := &testPair{
		reader: &fakeReader{},
		writer: newFakeWriter(),
		cp:     &fakeCheckpointer{},
		cheats: &fakeCheats{},
	}
	from := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	tp.ClientPair = usecase.NewClientPair(domain.NewEndpoint(url), &from, tp.reader, tp.writer, tp.cp, tp.cheats, nil)
	return tp
}

// fakeFactory builds test pairs and remembers every build
type fakeFactory struct {
	mu     sync.Mutex
	builds []string
	keys   []string
	pairs  map[string]*testPair
	err    error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{pairs: map[string]*testPair{}}
}

func (f *fakeFactory) Build(endpointURL string, signingKey string) (*usecase.ClientPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.builds = append(f.builds, endpointURL)
	f.keys = append(f.keys, signingKey)
	tp := newTestPair(endpointURL)
	f.pairs[endpointURL] = tp
	return tp.ClientPair, nil
}

func (f *fakeFactory) Pair(url string) *testPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairs[url]
}

func (f *fakeFactory) Builds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.builds...)
}

// MockForkService is a mock implementation of ForkService
type MockForkService struct {
	mock.Mock
}

func (m *MockForkService) Status(ctx context.Context) (*domain.ForkSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ForkSession), args.Error(1)
}

func (m *MockForkService) Start(ctx context.Context, source domain.Endpoint) error {
	args := m.Called(ctx, source)
	return args.Error(0)
}

func (m *MockForkService) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// fakeForkService behaves like the backend: not running until started
type fakeForkService struct {
	mu       sync.Mutex
	running  bool
	port     int
	source   domain.Endpoint
	starts   atomic.Int32
	stops    atomic.Int32
	startErr error
	gate     chan struct{}
}

func (f *fakeForkService) Status(ctx context.Context) (*domain.ForkSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return &domain.ForkSession{}, nil
	}
	return &domain.ForkSession{
		Running:     true,
		Port:        f.port,
		SourceURL:   f.source.URL,
		PinnedBlock: f.source.PinnedBlock,
	}, nil
}

func (f *fakeForkService) Start(ctx context.Context, source domain.Endpoint) error {
	f.starts.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.source = source
	if f.port == 0 {
		f.port = 9000
	}
	return nil
}

func (f *fakeForkService) Stop(ctx context.Context) error {
	f.stops.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

// MockTraceService is a mock implementation of TraceService
type MockTraceService struct {
	mock.Mock
}

func (m *MockTraceService) TraceByHash(ctx context.Context, hash common.Hash, rpcURL string) (*domain.TraceResponse, error) {
	args := m.Called(ctx, hash, rpcURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TraceResponse), args.Error(1)
}

func (m *MockTraceService) TraceByCall(ctx context.Context, req domain.TraceCallRequest, flavor domain.TraceFlavor) (*domain.TraceResponse, error) {
	args := m.Called(ctx, req, flavor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TraceResponse), args.Error(1)
}
