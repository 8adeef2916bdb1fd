package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

var (
	tokenAddr = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	aliceAddr = common.HexToAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
)

type fakeSession struct {
	mode      domain.Mode
	executed  []*domain.CallRequest
	actions   []domain.Action
	snapshots []domain.Snapshot
	reverted  string
	pinned    *uint64
	stopped   bool
	execErr   error
	trace     *domain.Trace
}

func (f *fakeSession) Mode() domain.Mode { return f.mode }

func (f *fakeSession) SetMode(mode domain.Mode) error {
	f.mode = mode
	return nil
}

func (f *fakeSession) Status(context.Context) usecase.SessionStatus {
	return usecase.SessionStatus{
		Mode:          f.mode,
		LiveEndpoint:  domain.Endpoint{URL: "https://eth.example.com"},
		LiveConnected: true,
		Fork:          domain.ForkSession{Running: true, Port: 8546},
		Snapshots:     len(f.snapshots),
		LatestBlock:   123,
	}
}

func (f *fakeSession) Execute(_ context.Context, req *domain.CallRequest) (*domain.ExecutionResult, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.executed = append(f.executed, req)
	if req.IsRead() {
		return &domain.ExecutionResult{
			Kind:       domain.ResultRead,
			Mode:       f.mode,
			ReturnData: common.LeftPadBytes(big.NewInt(7).Bytes(), 32),
		}, nil
	}
	hash := common.HexToHash("0xabc")
	return &domain.ExecutionResult{
		Kind:    domain.ResultTransaction,
		Mode:    f.mode,
		TxHash:  &hash,
		Receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(101), GasUsed: 21000},
	}, nil
}

func (f *fakeSession) ApplyAction(_ context.Context, action domain.Action) (*domain.Snapshot, error) {
	if !f.mode.IsLocal() {
		return nil, domain.ErrLocalModeOnly
	}
	f.actions = append(f.actions, action)
	return &domain.Snapshot{ID: "0x1", Method: domain.ActionLabel(action)}, nil
}

func (f *fakeSession) TraceLast(context.Context) (*domain.Trace, error) {
	if f.trace == nil {
		return nil, &domain.TraceError{Reason: "nothing has been executed in this session"}
	}
	return f.trace, nil
}

func (f *fakeSession) Snapshots() []domain.Snapshot { return f.snapshots }

func (f *fakeSession) HeadID() string {
	if len(f.snapshots) == 0 {
		return ""
	}
	return f.snapshots[len(f.snapshots)-1].ID
}

func (f *fakeSession) FindSnapshot(query string) (*domain.Snapshot, error) {
	for _, s := range f.snapshots {
		if s.ID == query || s.Method == query {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSession) RevertTo(_ context.Context, id string) error {
	f.reverted = id
	for i, s := range f.snapshots {
		if s.ID == id {
			f.snapshots = f.snapshots[:i]
		}
	}
	return nil
}

func (f *fakeSession) StartFork(_ context.Context, pinned *uint64) (domain.Endpoint, error) {
	f.pinned = pinned
	return domain.Endpoint{URL: domain.ForkURL(8546), PinnedBlock: pinned}, nil
}

func (f *fakeSession) StopFork(context.Context) { f.stopped = true }

func callTool(args map[string]any) gomcp.CallToolRequest {
	req := gomcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *gomcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(gomcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestStatusTool(t *testing.T) {
	tools := &Tools{session: &fakeSession{mode: domain.ModeLocal}}
	res, err := tools.handleStatus(context.Background(), callTool(nil))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "local")
	assert.Contains(t, text, "http://127.0.0.1:8546")
	assert.Contains(t, text, "123")
}

func TestSetModeTool(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLive}
	tools := &Tools{session: session}

	res, err := tools.handleSetMode(context.Background(), callTool(map[string]any{"mode": "local"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, domain.ModeLocal, session.mode)

	res, err = tools.handleSetMode(context.Background(), callTool(map[string]any{"mode": "mainnet"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestExecuteTool_ReadDecodesOutputs(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLive}
	tools := &Tools{session: session}

	res, err := tools.handleExecute(context.Background(), callTool(map[string]any{
		"to":         tokenAddr.Hex(),
		"sig":        "balanceOf(address)(uint256)",
		"args":       []any{aliceAddr.Hex()},
		"mutability": "view",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	require.Len(t, session.executed, 1)
	assert.True(t, session.executed[0].IsRead())
	assert.Contains(t, resultText(t, res), "Output 0:")
	assert.Contains(t, resultText(t, res), " 7")
}

func TestExecuteTool_LiveWriteGuard(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLive}
	tools := &Tools{session: session}
	args := map[string]any{"to": aliceAddr.Hex(), "value": "1ether"}

	res, err := tools.handleExecute(context.Background(), callTool(args))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, session.executed)

	tools.AllowLive = true
	res, err = tools.handleExecute(context.Background(), callTool(args))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, session.executed, 1)
	assert.Contains(t, resultText(t, res), "success")
}

func TestExecuteTool_LocalWrite(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLocal}
	tools := &Tools{session: session}

	res, err := tools.handleExecute(context.Background(), callTool(map[string]any{
		"to":   tokenAddr.Hex(),
		"sig":  "transfer(address,uint256)",
		"args": []any{aliceAddr.Hex(), "5"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Contains(t, resultText(t, res), "101")
	assert.Equal(t, "transfer", session.executed[0].Method)
}

func TestExecuteTool_FailurePointsAtTrace(t *testing.T) {
	hash := common.HexToHash("0xdead")
	session := &fakeSession{
		mode:    domain.ModeLocal,
		execErr: &domain.ExecutionError{Stage: "receipt", Hash: &hash, Err: errors.New("timeout")},
	}
	tools := &Tools{session: session}

	res, err := tools.handleExecute(context.Background(), callTool(map[string]any{"to": aliceAddr.Hex()}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), hash.Hex())
	assert.Contains(t, resultText(t, res), "chasm_trace")
}

func TestApplyActionTool(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLive}
	tools := &Tools{session: session}
	args := map[string]any{"kind": "set-balance", "account": aliceAddr.Hex(), "wei": "1000"}

	res, err := tools.handleApplyAction(context.Background(), callTool(args))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "local mode")

	session.mode = domain.ModeLocal
	res, err = tools.handleApplyAction(context.Background(), callTool(args))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	require.Len(t, session.actions, 1)
	assert.Equal(t, domain.ActionSetBalance, session.actions[0].Kind())

	res, err = tools.handleApplyAction(context.Background(), callTool(map[string]any{"kind": "set-balance", "account": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSnapshotsAndRevertTools(t *testing.T) {
	session := &fakeSession{
		mode: domain.ModeLocal,
		snapshots: []domain.Snapshot{
			{ID: "0x0", Method: domain.InitialSnapshotMethod, Status: domain.SnapshotConfirmed, Synthetic: true},
			{ID: "0x1", Method: "transfer", Status: domain.SnapshotConfirmed},
			{ID: "0x2", Method: "approve", Status: domain.SnapshotPending},
		},
	}
	tools := &Tools{session: session}

	res, err := tools.handleSnapshots(context.Background(), callTool(nil))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Snapshots (3)")
	assert.Contains(t, text, "* 0x2")

	res, err = tools.handleRevert(context.Background(), callTool(map[string]any{"snapshot": "transfer"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "0x1", session.reverted)
	assert.Len(t, session.snapshots, 1)

	res, err = tools.handleRevert(context.Background(), callTool(map[string]any{"snapshot": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTraceTool(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLocal}
	tools := &Tools{session: session}

	res, err := tools.handleTrace(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	session.trace = &domain.Trace{Kind: domain.TraceByHash, Endpoint: "http://127.0.0.1:8546", Stdout: "[21000] Token::transfer"}
	res, err = tools.handleTrace(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Token::transfer")
}

func TestForkTools(t *testing.T) {
	session := &fakeSession{mode: domain.ModeLocal}
	tools := &Tools{session: session}

	res, err := tools.handleForkStart(context.Background(), callTool(map[string]any{"block": float64(19000000)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotNil(t, session.pinned)
	assert.Equal(t, uint64(19000000), *session.pinned)
	assert.Contains(t, resultText(t, res), "@19000000")

	_, err = tools.handleForkStop(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.True(t, session.stopped)
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(&fakeSession{}, "test", false)
	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	names := make([]string, 0, len(decoded.Result.Tools))
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"chasm_status", "chasm_set_mode", "chasm_execute", "chasm_apply_action", "chasm_snapshots",
		"chasm_revert", "chasm_trace", "chasm_fork_start", "chasm_fork_stop",
	}, names)
}
