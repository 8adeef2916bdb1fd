package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEnvVar(t *testing.T) {
	tests := []struct {
		name       string
		rawValue   string
		wantEnvVar string
		wantIsVar  bool
	}{
		{"simple env var", "${SEPOLIA_RPC_URL}", "SEPOLIA_RPC_URL", true},
		{"env var with underscores", "${CELO_SEPOLIA_RPC_URL}", "CELO_SEPOLIA_RPC_URL", true},
		{"hardcoded URL", "https://sepolia.base.org", "", false},
		{"env var with path suffix", "${MY_VAR}/path", "", false},
		{"empty string", "", "", false},
		{"env var starting with underscore", "${_MY_VAR}", "_MY_VAR", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envVar, isVar := DetectEnvVar(tt.rawValue)
			assert.Equal(t, tt.wantEnvVar, envVar)
			assert.Equal(t, tt.wantIsVar, isVar)
		})
	}
}

func TestGenerateEnvVarName(t *testing.T) {
	assert.Equal(t, "SEPOLIA_RPC_URL", GenerateEnvVarName("sepolia"))
	assert.Equal(t, "CELO_SEPOLIA_RPC_URL", GenerateEnvVarName("celo-sepolia"))
	assert.Equal(t, "BASE_MAINNET_RPC_URL", GenerateEnvVarName("base.mainnet"))
}

func TestExpandRPCEndpoint(t *testing.T) {
	t.Setenv("ALCHEMY_KEY", "k3y")

	url, err := ExpandRPCEndpoint("mainnet", "https://eth-mainnet.g.alchemy.com/v2/${ALCHEMY_KEY}")
	require.NoError(t, err)
	assert.Equal(t, "https://eth-mainnet.g.alchemy.com/v2/k3y", url)

	url, err = ExpandRPCEndpoint("local", "http://127.0.0.1:8545")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", url)
}

func TestExpandRPCEndpoint_Unset(t *testing.T) {
	_, err := ExpandRPCEndpoint("sepolia", "${CHASM_TEST_UNSET_VAR}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHASM_TEST_UNSET_VAR")
	assert.Contains(t, err.Error(), "SEPOLIA_RPC_URL")
}
