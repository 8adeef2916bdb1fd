package domain

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_JSONShape(t *testing.T) {
	env := Envelope{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(`1`),
		Method:  MethodCall,
		Params: RawParams{
			Call:     CallObject{To: "0x00000000000000000000000000000000000000aa", Data: "0x06fdde03"},
			BlockTag: BlockTagLatest,
		},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "eth_call",
		"params": [{"to": "0x00000000000000000000000000000000000000aa", "data": "0x06fdde03"}, "latest"]
	}`, string(data))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env, decoded)
}

func TestEnvelope_SendHasNoBlockTag(t *testing.T) {
	env := Envelope{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(`7`),
		Method:  MethodSendTransaction,
		Params:  RawParams{Call: CallObject{Value: "0x0", Data: "0x"}},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"method":"eth_sendTransaction","params":[{"value":"0x0","data":"0x"}]}`, string(data))
}

func TestEnvelope_IDKeptVerbatim(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"number", `42`},
		{"string", `"req-a"`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"jsonrpc":"2.0","id":` + tt.id + `,"method":"eth_call","params":[{"to":"0xabc"},"latest"]}`

			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(raw), &env))
			assert.Equal(t, tt.id, string(env.ID))

			data, err := json.Marshal(env)
			require.NoError(t, err)
			assert.JSONEq(t, raw, string(data))
		})
	}

	t.Run("missing id defaults to 1", func(t *testing.T) {
		data, err := json.Marshal(Envelope{JSONRPC: JSONRPCVersion, Method: MethodCall, Params: RawParams{Call: CallObject{To: "0xabc"}}})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"id":1`)
	})

	t.Run("object id is rejected", func(t *testing.T) {
		var env Envelope
		err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":{"n":1},"method":"eth_call","params":[{"to":"0xabc"}]}`), &env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid id")
	})
}

func TestCallObject_TolerantDecoding(t *testing.T) {
	var obj CallObject
	err := json.Unmarshal([]byte(`{"to":"0xabc","gas":21000,"value":"1000","input":"0x1234"}`), &obj)
	require.NoError(t, err)

	assert.Equal(t, "21000", obj.Gas)
	assert.Equal(t, "1000", obj.Value)
	assert.Equal(t, "0x1234", obj.Data, "input is an alias for data")
}

func TestEnvelope_RejectsMissingParams(t *testing.T) {
	var env Envelope
	err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"method":"eth_call","params":[]}`), &env)
	assert.Error(t, err)
}

func TestCallRequest_Label(t *testing.T) {
	to := common.HexToAddress("0x01")

	tests := []struct {
		name string
		req  CallRequest
		want string
	}{
		{"named method", CallRequest{To: &to, Method: "transfer"}, "transfer"},
		{"deploy", CallRequest{Data: []byte{0x60, 0x80}}, "Deploy"},
		{"plain value transfer", CallRequest{To: &to, Value: big.NewInt(1)}, "Send ETH"},
		{"raw selector", CallRequest{To: &to, Data: []byte{0xa9, 0x05, 0x9c, 0xbb, 0x00}}, "0xa9059cbb"},
		{"empty", CallRequest{To: &to}, "call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Label())
		})
	}
}

func TestCallRequest_IsRead(t *testing.T) {
	to := common.HexToAddress("0x01")

	assert.True(t, (&CallRequest{To: &to, Mutability: MutabilityView}).IsRead())
	assert.False(t, (&CallRequest{To: &to, Mutability: MutabilityPayable}).IsRead())
	assert.False(t, (&CallRequest{Mutability: MutabilityView}).IsRead(), "deploys are always transactions")
}

func TestRecoverTxHash(t *testing.T) {
	hash := "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

	got := RecoverTxHash(errors.New("transaction " + hash + " failed: out of gas"))
	require.NotNil(t, got)
	assert.Equal(t, common.HexToHash(hash), *got)

	assert.Nil(t, RecoverTxHash(errors.New("insufficient funds")))
	assert.Nil(t, RecoverTxHash(nil))
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("nonce too low")
	err := &ExecutionError{Stage: "submit", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "submit failed: nonce too low", err.Error())

	var target *ExecutionError
	assert.True(t, errors.As(error(err), &target))
}
