package usecase_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

func TestBuildCall_Signature(t *testing.T) {
	built, err := usecase.BuildCall(usecase.CallSpec{
		To:   tokenAddr.Hex(),
		Sig:  "transfer(address,uint256)",
		Args: []string{aliceAddr.Hex(), "1000"},
	})
	require.NoError(t, err)

	want, err := mustABI(t).Pack("transfer", aliceAddr, big.NewInt(1000))
	require.NoError(t, err)

	req := built.Request
	assert.Equal(t, want, req.Data)
	assert.Equal(t, "transfer", req.Method)
	assert.Equal(t, domain.MutabilityNonPayable, req.Mutability)
	assert.False(t, req.IsRead())
	assert.Equal(t, "transfer", req.Label())
}

func TestBuildCall_ReadDecodesReturn(t *testing.T) {
	built, err := usecase.BuildCall(usecase.CallSpec{
		To:         tokenAddr.Hex(),
		Sig:        "balanceOf(address)(uint256)",
		Args:       []string{aliceAddr.Hex()},
		Mutability: "view",
	})
	require.NoError(t, err)
	assert.True(t, built.Request.IsRead())

	ret := common.LeftPadBytes(big.NewInt(42).Bytes(), 32)
	values, err := built.DecodeReturn(ret)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, big.NewInt(42), values[0])
}

func TestBuildCall_Raw(t *testing.T) {
	built, err := usecase.BuildCall(usecase.CallSpec{
		Raw: `{"jsonrpc":"2.0","id":1,"method":"eth_call","params":[{"to":"` + tokenAddr.Hex() + `","data":"0x70a08231"},"latest"]}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AuthoringRaw, built.Request.Authoring)
	assert.True(t, built.Request.IsRead())
	assert.Nil(t, built.Method)
}

func TestBuildCall_Deploy(t *testing.T) {
	built, err := usecase.BuildCall(usecase.CallSpec{
		Data: "0x6080",
		Sig:  "constructor(uint8,bool)",
		Args: []string{"18", "true"},
	})
	require.NoError(t, err)
	req := built.Request
	assert.True(t, req.IsDeploy())
	require.Len(t, req.Data, 2+64)
	assert.Equal(t, []byte{0x60, 0x80}, req.Data[:2])
	assert.Equal(t, byte(18), req.Data[2+31])
	assert.Equal(t, byte(1), req.Data[2+63])
}

func TestBuildCall_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec usecase.CallSpec
		want string
	}{
		{"bad to", usecase.CallSpec{To: "0x123"}, "invalid to address"},
		{"deploy without code", usecase.CallSpec{}, "requires init code"},
		{"args without sig", usecase.CallSpec{To: tokenAddr.Hex(), Args: []string{"1"}}, "without a signature"},
		{"arg count", usecase.CallSpec{To: tokenAddr.Hex(), Sig: "f(uint256)"}, "expected 1 arguments"},
		{"uint overflow", usecase.CallSpec{To: tokenAddr.Hex(), Sig: "f(uint8)", Args: []string{"256"}}, "overflows uint8"},
		{"negative uint", usecase.CallSpec{To: tokenAddr.Hex(), Sig: "f(uint256)", Args: []string{"-1"}}, "negative"},
		{"bad mutability", usecase.CallSpec{To: tokenAddr.Hex(), Mutability: "constant"}, "unknown mutability"},
		{"sig without to", usecase.CallSpec{Sig: "f()"}, "requires a target address"},
		{"bad sig", usecase.CallSpec{To: tokenAddr.Hex(), Sig: "f(uint256"}, "invalid signature"},
		{"bad value", usecase.CallSpec{To: tokenAddr.Hex(), Value: "lots"}, "invalid value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := usecase.BuildCall(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConvertArgs_Collections(t *testing.T) {
	method, err := usecase.ParseSignature("f(address[],bytes4,int16[2])", "")
	require.NoError(t, err)

	args, err := usecase.ConvertArgs(method.Inputs, []string{
		"[" + aliceAddr.Hex() + "," + tokenAddr.Hex() + "]",
		"0xa9059cbb",
		"[-3, 7]",
	})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{aliceAddr, tokenAddr}, args[0])
	assert.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, args[1])
	assert.Equal(t, [2]int16{-3, 7}, args[2])

	_, err = method.Inputs.Pack(args...)
	require.NoError(t, err)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1000", "1000"},
		{"0x10", "16"},
		{"1ether", "1000000000000000000"},
		{"1.5 ether", "1500000000000000000"},
		{"30gwei", "30000000000"},
		{"2 eth", "2000000000000000000"},
		{"7wei", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := usecase.ParseValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	for _, bad := range []string{"", "abc", "-1ether", "0.1wei"} {
		_, err := usecase.ParseValue(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildCall_ValueMakesPayable(t *testing.T) {
	built, err := usecase.BuildCall(usecase.CallSpec{To: aliceAddr.Hex(), Value: "1ether"})
	require.NoError(t, err)
	assert.Equal(t, domain.MutabilityPayable, built.Request.Mutability)
	assert.Equal(t, "Send ETH", built.Request.Label())
	assert.Equal(t, hexutil.EncodeBig(built.Request.Value), "0xde0b6b3a7640000")
}
