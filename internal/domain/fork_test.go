package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkSession_Endpoint(t *testing.T) {
	session := ForkSession{Running: true, Port: 9000}

	assert.True(t, session.HasPort())
	assert.Equal(t, "http://127.0.0.1:9000", session.Endpoint().URL)
	assert.Nil(t, session.Endpoint().PinnedBlock)
}

func TestForkSession_StatusPayload(t *testing.T) {
	// Shape produced by the fork service's status endpoint
	payload := `{"running":true,"rpcUrl":"https://eth.example","blockNumber":19000000,"port":8546}`

	var session ForkSession
	require.NoError(t, json.Unmarshal([]byte(payload), &session))

	assert.True(t, session.Running)
	assert.Equal(t, 8546, session.Port)
	assert.Equal(t, "https://eth.example", session.SourceURL)
	require.NotNil(t, session.PinnedBlock)
	assert.Equal(t, uint64(19000000), *session.PinnedBlock)
}

func TestEndpoint_WithPinnedBlock(t *testing.T) {
	base := NewEndpoint("https://eth.example")
	pinned := base.WithPinnedBlock(42)

	assert.Nil(t, base.PinnedBlock, "original endpoint must not change")
	require.NotNil(t, pinned.PinnedBlock)
	assert.Equal(t, uint64(42), *pinned.PinnedBlock)
	assert.Equal(t, "https://eth.example@42", pinned.String())
	assert.Equal(t, "https://eth.example", base.String())
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"live", ModeLive, false},
		{"", ModeLive, false},
		{"local", ModeLocal, false},
		{"fork", ModeLocal, false},
		{"mainnet", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
