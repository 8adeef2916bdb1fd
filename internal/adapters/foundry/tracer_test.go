package foundry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
)

const forkRPC = "http://127.0.0.1:8546"

func TestBuildCallTreeArgs(t *testing.T) {
	tests := []struct {
		name string
		req  domain.TraceCallRequest
		want []string
	}{
		{
			name: "plain call",
			req: domain.TraceCallRequest{
				RPCURL: forkRPC,
				Call:   domain.CallObject{To: "0x5fbdb2315678afecb367f032d93f642f64180aa3", Data: "0xa9059cbb"},
			},
			want: []string{"call", "--rpc-url", forkRPC, "--trace", "--gas-price", "0",
				"--block", "latest", "0x5fbdb2315678afecb367f032d93f642f64180aa3", "0xa9059cbb"},
		},
		{
			name: "hex gas and value converted to decimal",
			req: domain.TraceCallRequest{
				RPCURL:   forkRPC,
				BlockTag: "0x10",
				Call: domain.CallObject{
					From:  "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
					To:    "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
					Gas:   "0x5208",
					Value: "0xde0b6b3a7640000",
				},
			},
			want: []string{"call", "--rpc-url", forkRPC, "--trace", "--gas-price", "0",
				"--from", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
				"--gas", "21000",
				"--block", "0x10",
				"0x70997970c51812dc3a010c7d01b50e0d17dc79c8", "0x",
				"--value", "1000000000000000000"},
		},
		{
			name: "deployment with zero value",
			req: domain.TraceCallRequest{
				RPCURL: forkRPC,
				Call:   domain.CallObject{Data: "0x6080", Value: "0x0"},
			},
			want: []string{"call", "--rpc-url", forkRPC, "--trace", "--gas-price", "0",
				"--block", "latest", "--create", "0x6080"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildCallTreeArgs(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCallTreeArgs_InvalidQuantity(t *testing.T) {
	_, err := buildCallTreeArgs(domain.TraceCallRequest{Call: domain.CallObject{Gas: "lots"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid gas")
}

// fakeCast writes an executable script standing in for cast
func fakeCast(t *testing.T, script string) *Tracer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cast")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return NewTracer(&config.RuntimeConfig{CastBin: path}, nil)
}

func TestRun_PassesHashAndEndpoint(t *testing.T) {
	tracer := fakeCast(t, `echo "$@"`)
	hash := common.HexToHash("0x01")

	resp, err := tracer.Run(context.Background(), hash, forkRPC)
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "run "+hash.Hex()+" --rpc-url "+forkRPC+"\n", resp.Stdout)
}

func TestRun_NonZeroExitCarriesStderr(t *testing.T) {
	tracer := fakeCast(t, `echo "Error: transaction not found" >&2; exit 1`)

	resp, err := tracer.Run(context.Background(), common.Hash{}, forkRPC)
	require.NoError(t, err)
	assert.Equal(t, "Error: transaction not found", resp.Error)
}

func TestCallTree_EmptyOutputIsAnError(t *testing.T) {
	tracer := fakeCast(t, `exit 0`)

	resp, err := tracer.CallTree(context.Background(), domain.TraceCallRequest{RPCURL: forkRPC})
	require.NoError(t, err)
	assert.Equal(t, "cast produced no output", resp.Error)
}

func TestRun_MissingBinary(t *testing.T) {
	tracer := NewTracer(&config.RuntimeConfig{CastBin: filepath.Join(t.TempDir(), "missing")}, nil)
	_, err := tracer.Run(context.Background(), common.Hash{}, forkRPC)
	require.Error(t, err)
}

func TestDebugCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     json.RawMessage   `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "debug_traceCall", req.Method)
		require.Len(t, req.Params, 2)
		assert.JSONEq(t, `"latest"`, string(req.Params[1]))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"gas": 21000, "failed": false},
		})
	}))
	defer server.Close()

	resp, err := NewTracer(nil, nil).DebugCall(context.Background(), domain.TraceCallRequest{
		RPCURL: server.URL,
		Call:   domain.CallObject{To: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.JSONEq(t, `{"gas":21000,"failed":false}`, resp.Stdout)
}
