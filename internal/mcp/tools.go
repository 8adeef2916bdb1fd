// Package mcp exposes a working session as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// Session is the part of the working session the tools drive
type Session interface {
	Mode() domain.Mode
	SetMode(mode domain.Mode) error
	Status(ctx context.Context) usecase.SessionStatus
	Execute(ctx context.Context, req *domain.CallRequest) (*domain.ExecutionResult, error)
	ApplyAction(ctx context.Context, action domain.Action) (*domain.Snapshot, error)
	TraceLast(ctx context.Context) (*domain.Trace, error)
	Snapshots() []domain.Snapshot
	HeadID() string
	FindSnapshot(query string) (*domain.Snapshot, error)
	RevertTo(ctx context.Context, externalID string) error
	StartFork(ctx context.Context, pinned *uint64) (domain.Endpoint, error)
	StopFork(ctx context.Context)
}

// Tools holds the MCP tool handlers
type Tools struct {
	session Session
	// AllowLive permits mutating calls in live mode
	AllowLive bool
}

// NewServer creates an MCP server with every tool registered
func NewServer(session Session, version string, allowLive bool) *server.MCPServer {
	s := server.NewMCPServer(
		"chasm",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	RegisterTools(s, &Tools{session: session, AllowLive: allowLive})
	return s
}

// RegisterTools registers all session tools on the MCP server
func RegisterTools(s *server.MCPServer, t *Tools) {
	s.AddTool(gomcp.NewTool("chasm_status",
		gomcp.WithDescription("Show the selected mode (live or local), live endpoint connectivity, fork state, snapshot count and latest block."),
	), t.handleStatus)

	s.AddTool(gomcp.NewTool("chasm_set_mode",
		gomcp.WithDescription("Switch between live (the configured network) and local (a fork of it). Entering local mode does not start the fork."),
		gomcp.WithString("mode", gomcp.Required(), gomcp.Enum("live", "local"), gomcp.Description("Target mode")),
	), t.handleSetMode)

	s.AddTool(gomcp.NewTool("chasm_execute",
		gomcp.WithDescription("Execute a call or transaction in the current mode. Reads (view/pure) use eth_call; writes are sent and awaited. In local mode every write is preceded by a revertible snapshot. This is a MUTATING operation unless mutability is view or pure."),
		gomcp.WithString("to", gomcp.Description("Target address; omit to deploy data as init code")),
		gomcp.WithString("from", gomcp.Description("Sender address; defaults to the configured key")),
		gomcp.WithString("value", gomcp.Description("Value in wei, or with a unit such as 0.1ether")),
		gomcp.WithNumber("gas", gomcp.Description("Gas limit; estimated when omitted")),
		gomcp.WithString("data", gomcp.Description("Hex calldata or init code")),
		gomcp.WithString("sig", gomcp.Description("Function signature such as transfer(address,uint256) or balanceOf(address)(uint256)")),
		gomcp.WithArray("args", gomcp.WithStringItems(), gomcp.Description("Arguments for sig, as strings")),
		gomcp.WithString("mutability", gomcp.Enum("pure", "view", "nonpayable", "payable"), gomcp.Description("State mutability; view and pure are reads")),
		gomcp.WithString("block", gomcp.Description("Block tag for reads (default latest)")),
		gomcp.WithString("raw", gomcp.Description("A raw JSON-RPC eth_call or eth_sendTransaction request, used instead of the other fields")),
	), t.handleExecute)

	s.AddTool(gomcp.NewTool("chasm_apply_action",
		gomcp.WithDescription("Apply a cheat action to the local fork: warp, roll, set-balance, set-nonce, set-code, set-storage, impersonate, stop-impersonate. Local mode only. Each action is snapshotted first."),
		gomcp.WithString("kind", gomcp.Required(), gomcp.Enum(
			string(domain.ActionWarp), string(domain.ActionRoll), string(domain.ActionSetBalance), string(domain.ActionSetNonce),
			string(domain.ActionSetCode), string(domain.ActionSetStorage), string(domain.ActionImpersonate), string(domain.ActionStopImpersonate),
		)),
		gomcp.WithString("account", gomcp.Description("Account the action touches (all kinds except warp and roll)")),
		gomcp.WithNumber("timestamp", gomcp.Description("warp: unix timestamp of the next block")),
		gomcp.WithNumber("blocks", gomcp.Description("roll: number of blocks to mine (default 1)")),
		gomcp.WithString("wei", gomcp.Description("set-balance: balance in wei")),
		gomcp.WithNumber("nonce", gomcp.Description("set-nonce: new nonce")),
		gomcp.WithString("code", gomcp.Description("set-code: hex runtime code")),
		gomcp.WithString("slot", gomcp.Description("set-storage: 32-byte slot")),
		gomcp.WithString("value", gomcp.Description("set-storage: 32-byte value")),
	), t.handleApplyAction)

	s.AddTool(gomcp.NewTool("chasm_snapshots",
		gomcp.WithDescription("List the local fork's snapshot history, oldest first, marking the active one."),
	), t.handleSnapshots)

	s.AddTool(gomcp.NewTool("chasm_revert",
		gomcp.WithDescription("Revert the local fork to a snapshot, discarding it and every later one. This is a MUTATING operation."),
		gomcp.WithString("snapshot", gomcp.Required(), gomcp.Description("Snapshot id, local id, or a label to fuzzy match (e.g. transfer)")),
	), t.handleRevert)

	s.AddTool(gomcp.NewTool("chasm_trace",
		gomcp.WithDescription("Trace the most recent execution, successful or failed, against the node that ran it."),
	), t.handleTrace)

	s.AddTool(gomcp.NewTool("chasm_fork_start",
		gomcp.WithDescription("Start the local fork of the live endpoint, optionally pinned to a block."),
		gomcp.WithNumber("block", gomcp.Description("Block number to fork at; latest when omitted")),
	), t.handleForkStart)

	s.AddTool(gomcp.NewTool("chasm_fork_stop",
		gomcp.WithDescription("Stop the local fork and drop its snapshot history. This is a MUTATING operation."),
	), t.handleForkStop)
}

func (t *Tools) handleStatus(ctx context.Context, _ gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return gomcp.NewToolResultText(formatStatus(t.session.Status(ctx))), nil
}

func (t *Tools) handleSetMode(_ context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	raw, err := req.RequireString("mode")
	if err != nil {
		return gomcp.NewToolResultError("mode is required"), nil
	}
	mode, err := domain.ParseMode(raw)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	if err := t.session.SetMode(mode); err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Mode change failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(kv("Mode", mode)), nil
}

func (t *Tools) handleExecute(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	spec := usecase.CallSpec{
		To:         req.GetString("to", ""),
		From:       req.GetString("from", ""),
		Value:      req.GetString("value", ""),
		Gas:        uint64(req.GetInt("gas", 0)),
		Data:       req.GetString("data", ""),
		Sig:        req.GetString("sig", ""),
		Args:       req.GetStringSlice("args", nil),
		Mutability: req.GetString("mutability", ""),
		Block:      req.GetString("block", ""),
		Raw:        req.GetString("raw", ""),
	}
	built, err := usecase.BuildCall(spec)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Invalid call: %v", err)), nil
	}
	if !built.Request.IsRead() && !t.session.Mode().IsLocal() && !t.AllowLive {
		return gomcp.NewToolResultError("Refusing to send a transaction in live mode. Switch to local mode or start the MCP server with --allow-live."), nil
	}

	result, err := t.session.Execute(ctx, built.Request)
	if err != nil {
		return gomcp.NewToolResultError(formatExecutionError(err)), nil
	}
	decoded, _ := built.DecodeReturn(result.ReturnData)
	return gomcp.NewToolResultText(formatResult(result, decoded)), nil
}

func (t *Tools) handleApplyAction(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return gomcp.NewToolResultError("kind is required"), nil
	}
	action, err := domain.ParseAction(domain.ActionSpec{
		Kind:      kind,
		Account:   req.GetString("account", ""),
		Timestamp: uint64(req.GetInt("timestamp", 0)),
		Blocks:    uint64(req.GetInt("blocks", 0)),
		Wei:       req.GetString("wei", ""),
		Nonce:     uint64(req.GetInt("nonce", 0)),
		Code:      req.GetString("code", ""),
		Slot:      req.GetString("slot", ""),
		Value:     req.GetString("value", ""),
	})
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Invalid action: %v", err)), nil
	}

	snap, err := t.session.ApplyAction(ctx, action)
	if err != nil {
		if errors.Is(err, domain.ErrLocalModeOnly) {
			return gomcp.NewToolResultError("Cheat actions need local mode. Call chasm_set_mode with mode=local first."), nil
		}
		return gomcp.NewToolResultError(fmt.Sprintf("Action failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(joinLines(
		section("Action Applied"),
		kv("Action", domain.ActionLabel(action)),
		kv("Snapshot", snap.ID),
	)), nil
}

func (t *Tools) handleSnapshots(_ context.Context, _ gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return gomcp.NewToolResultText(formatSnapshots(t.session.Snapshots(), t.session.HeadID())), nil
}

func (t *Tools) handleRevert(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	query, err := req.RequireString("snapshot")
	if err != nil {
		return gomcp.NewToolResultError("snapshot is required"), nil
	}
	snap, err := t.session.FindSnapshot(query)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	if err := t.session.RevertTo(ctx, snap.ID); err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Revert failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(joinLines(
		section("Reverted"),
		kv("Snapshot", snap.ID),
		kv("Before", snap.Method),
		kv("Remaining", strconv.Itoa(len(t.session.Snapshots()))),
	)), nil
}

func (t *Tools) handleTrace(ctx context.Context, _ gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	trace, err := t.session.TraceLast(ctx)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Trace failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(joinLines(
		section("Trace ("+string(trace.Kind)+")"),
		kv("Endpoint", trace.Endpoint),
		trace.Text(),
	)), nil
}

func (t *Tools) handleForkStart(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var pinned *uint64
	if b := req.GetInt("block", 0); b > 0 {
		block := uint64(b)
		pinned = &block
	}
	endpoint, err := t.session.StartFork(ctx, pinned)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Fork start failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(joinLines(
		section("Fork Running"),
		kv("Endpoint", endpoint.String()),
	)), nil
}

func (t *Tools) handleForkStop(ctx context.Context, _ gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	t.session.StopFork(ctx)
	return gomcp.NewToolResultText(joinLines(
		section("Fork Stopped"),
		"Snapshot history and local block data were dropped.",
	)), nil
}
