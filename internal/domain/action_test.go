package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestParseAction(t *testing.T) {
	account := common.HexToAddress(testAccount)

	tests := []struct {
		name    string
		spec    ActionSpec
		want    Action
		wantErr string
	}{
		{
			name: "warp",
			spec: ActionSpec{Kind: "warp", Timestamp: 1700000000},
			want: Warp{Timestamp: 1700000000},
		},
		{
			name: "roll defaults to one block",
			spec: ActionSpec{Kind: "roll"},
			want: Roll{Blocks: 1},
		},
		{
			name: "set balance decimal",
			spec: ActionSpec{Kind: "set-balance", Account: testAccount, Wei: "1000000000000000000"},
			want: SetBalance{Account: account, Wei: uint256.NewInt(1_000_000_000_000_000_000)},
		},
		{
			name: "set balance hex",
			spec: ActionSpec{Kind: "set-balance", Account: testAccount, Wei: "0x10"},
			want: SetBalance{Account: account, Wei: uint256.NewInt(16)},
		},
		{
			name: "set storage",
			spec: ActionSpec{Kind: "set-storage", Account: testAccount, Slot: "0x0", Value: "0x01"},
			want: SetStorage{Account: account, Slot: common.Hash{}, Value: common.BytesToHash([]byte{1})},
		},
		{
			name: "impersonate",
			spec: ActionSpec{Kind: "impersonate", Account: testAccount},
			want: Impersonate{Account: account},
		},
		{
			name:    "bad account",
			spec:    ActionSpec{Kind: "set-nonce", Account: "0x123"},
			wantErr: "invalid account",
		},
		{
			name:    "warp without timestamp",
			spec:    ActionSpec{Kind: "warp"},
			wantErr: "timestamp is required",
		},
		{
			name:    "unknown",
			spec:    ActionSpec{Kind: "teleport", Account: testAccount},
			wantErr: "unknown action kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.spec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionCalls(t *testing.T) {
	account := common.HexToAddress(testAccount)

	warp := Warp{Timestamp: 10}.Calls()
	require.Len(t, warp, 2)
	assert.Equal(t, "evm_setNextBlockTimestamp", warp[0].Method)
	assert.Equal(t, []any{hexutil.Uint64(10)}, warp[0].Params)
	assert.Equal(t, "evm_mine", warp[1].Method)

	balance := SetBalance{Account: account, Wei: uint256.NewInt(255)}.Calls()
	require.Len(t, balance, 1)
	assert.Equal(t, "anvil_setBalance", balance[0].Method)
	assert.Equal(t, []any{account, "0xff"}, balance[0].Params)

	stop := StopImpersonate{Account: account}.Calls()
	assert.Equal(t, "anvil_stopImpersonatingAccount", stop[0].Method)
}

func TestActionLabel(t *testing.T) {
	account := common.HexToAddress(testAccount)

	assert.Equal(t, "warp 99", ActionLabel(Warp{Timestamp: 99}))
	assert.Equal(t, "roll +3", ActionLabel(Roll{Blocks: 3}))
	assert.Equal(t, "impersonate "+account.Hex(), ActionLabel(Impersonate{Account: account}))
}
