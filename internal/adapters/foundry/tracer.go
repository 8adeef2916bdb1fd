package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// Tracer produces traces with cast and debug_traceCall
type Tracer struct {
	castBin string
	color   bool
	log     *slog.Logger
}

// NewTracer creates a tracer
func NewTracer(cfg *config.RuntimeConfig, log *slog.Logger) *Tracer {
	t := &Tracer{castBin: "cast", log: log}
	if cfg != nil {
		if cfg.CastBin != "" {
			t.castBin = cfg.CastBin
		}
		t.color = cfg.TraceColor
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	t.log = t.log.With("component", "Tracer")
	return t
}

// Run replays a mined transaction with cast run
func (t *Tracer) Run(ctx context.Context, hash common.Hash, rpcURL string) (*domain.TraceResponse, error) {
	return t.runCast(ctx, []string{"run", hash.Hex(), "--rpc-url", rpcURL})
}

// CallTree simulates the call with cast call --trace
func (t *Tracer) CallTree(ctx context.Context, req domain.TraceCallRequest) (*domain.TraceResponse, error) {
	args, err := buildCallTreeArgs(req)
	if err != nil {
		return &domain.TraceResponse{Error: err.Error()}, nil
	}
	return t.runCast(ctx, args)
}

// DebugCall returns the node's debug_traceCall result as indented JSON
func (t *Tracer) DebugCall(ctx context.Context, req domain.TraceCallRequest) (*domain.TraceResponse, error) {
	client, err := rpc.DialContext(ctx, req.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", req.RPCURL, err)
	}
	defer client.Close()

	tag := req.BlockTag
	if tag == "" {
		tag = domain.BlockTagLatest
	}

	var raw json.RawMessage
	if err := client.CallContext(ctx, &raw, "debug_traceCall", req.Call, tag); err != nil {
		return &domain.TraceResponse{Error: err.Error()}, nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return &domain.TraceResponse{Error: "debug_traceCall returned no output"}, nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		out.Reset()
		out.Write(raw)
	}
	return &domain.TraceResponse{Stdout: out.String()}, nil
}

// buildCallTreeArgs translates a call object to cast call arguments. Gas and
// value are passed to cast in decimal; a zero value is omitted.
func buildCallTreeArgs(req domain.TraceCallRequest) ([]string, error) {
	tag := req.BlockTag
	if tag == "" {
		tag = domain.BlockTagLatest
	}
	args := []string{"call", "--rpc-url", req.RPCURL, "--trace", "--gas-price", "0"}

	call := req.Call
	if call.From != "" {
		args = append(args, "--from", call.From)
	}
	if call.Gas != "" {
		gas, ok := math.ParseBig256(call.Gas)
		if !ok {
			return nil, fmt.Errorf("invalid gas %q", call.Gas)
		}
		args = append(args, "--gas", gas.String())
	}
	args = append(args, "--block", tag)

	data := call.Data
	if data == "" {
		data = "0x"
	}
	if call.To == "" {
		args = append(args, "--create", data)
	} else {
		args = append(args, call.To, data)
	}

	if call.Value != "" {
		value, ok := math.ParseBig256(call.Value)
		if !ok {
			return nil, fmt.Errorf("invalid value %q", call.Value)
		}
		if value.Sign() > 0 {
			args = append(args, "--value", value.String())
		}
	}
	return args, nil
}

func (t *Tracer) runCast(ctx context.Context, args []string) (*domain.TraceResponse, error) {
	start := time.Now()
	t.log.Debug("running cast", "args", args)

	cmd := exec.CommandContext(ctx, t.castBin, args...)

	var stdout, stderr string
	var runErr error
	if t.color {
		stdout, runErr = runWithPTY(cmd)
	} else {
		var outBuf, errBuf bytes.Buffer
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
		runErr = cmd.Run()
		stdout, stderr = outBuf.String(), errBuf.String()
	}

	var execErr *exec.Error
	if errors.As(runErr, &execErr) {
		return nil, fmt.Errorf("failed to run %s: %w", t.castBin, runErr)
	}

	t.log.Debug("cast finished", "duration", time.Since(start), "error", runErr)

	resp := &domain.TraceResponse{Stdout: stdout, Stderr: stderr}
	switch {
	case runErr != nil:
		resp.Error = failureText(stderr, stdout, runErr)
	case strings.TrimSpace(stdout) == "":
		resp.Error = failureText(stderr, "", errors.New("cast produced no output"))
	}
	return resp, nil
}

// runWithPTY runs cmd attached to a pseudo-terminal so cast keeps its colors.
// Stdout and stderr arrive merged.
func runWithPTY(cmd *exec.Cmd) (string, error) {
	ptyFile, err := pty.Start(cmd)
	if err != nil {
		return "", err
	}
	defer func() { _ = ptyFile.Close() }()

	var out bytes.Buffer
	// reading a pty after the child exits ends in EIO on linux
	_, _ = io.Copy(&out, ptyFile)
	return strings.ReplaceAll(out.String(), "\r\n", "\n"), cmd.Wait()
}

func failureText(stderr, stdout string, err error) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(stdout); s != "" {
		return s
	}
	return err.Error()
}

var _ usecase.Tracer = (*Tracer)(nil)
