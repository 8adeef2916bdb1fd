package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SnapshotStatus tracks the action a snapshot was taken for
type SnapshotStatus string

const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotConfirmed SnapshotStatus = "confirmed"
	SnapshotError     SnapshotStatus = "error"
)

// InitialSnapshotMethod labels the synthetic pre-state capture
const InitialSnapshotMethod = "initial state"

// Snapshot is a revertible checkpoint of the local network taken before an action.
// ID is the opaque handle returned by evm_snapshot; LocalID is ours.
type Snapshot struct {
	ID          string          `json:"id"`
	LocalID     string          `json:"localId"`
	Seq         uint64          `json:"seq"`
	CreatedAt   time.Time       `json:"createdAt"`
	Method      string          `json:"method"`
	From        *common.Address `json:"from,omitempty"`
	To          *common.Address `json:"to,omitempty"`
	Value       *big.Int        `json:"value,omitempty"`
	TxHash      *common.Hash    `json:"txHash,omitempty"`
	BlockNumber *uint64         `json:"blockNumber,omitempty"`
	Status      SnapshotStatus  `json:"status"`
	Synthetic   bool            `json:"synthetic,omitempty"`
}

// Before reports whether s was created before other
func (s *Snapshot) Before(other *Snapshot) bool {
	return s.Seq < other.Seq
}

// ActionInfo describes the action a snapshot is being recorded for
type ActionInfo struct {
	Method string
	From   *common.Address
	To     *common.Address
	Value  *big.Int
}

// SnapshotPatch holds the fields Update may merge into a snapshot.
// Nil fields are left untouched.
type SnapshotPatch struct {
	Status      *SnapshotStatus
	TxHash      *common.Hash
	BlockNumber *uint64
}

// Confirmed builds a patch marking a snapshot confirmed at the given tx
func Confirmed(hash common.Hash, block uint64) SnapshotPatch {
	status := SnapshotConfirmed
	return SnapshotPatch{Status: &status, TxHash: &hash, BlockNumber: &block}
}

// Failed builds a patch marking a snapshot errored, with the hash if one was recovered
func Failed(hash *common.Hash) SnapshotPatch {
	status := SnapshotError
	return SnapshotPatch{Status: &status, TxHash: hash}
}
