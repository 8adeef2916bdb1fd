package domain

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress is returned when an Ethereum address is invalid
	ErrInvalidAddress = errors.New("invalid address")

	// ErrLocalModeOnly is returned when an operation needs the fork network
	ErrLocalModeOnly = errors.New("operation is only available in local mode")

	// ErrSessionClosed is returned once a session has been torn down
	ErrSessionClosed = errors.New("session closed")

	// ErrNoCheckpointer is returned when the client pair cannot take checkpoints
	ErrNoCheckpointer = errors.New("client pair cannot take checkpoints")

	// ErrCalldataNotDerivable is returned when structured arguments were edited
	// but the calldata cannot be re-encoded from them
	ErrCalldataNotDerivable = errors.New("calldata cannot be re-derived from structured fields without an ABI")
)

// ConfigurationError reports a bad endpoint or signing key
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ForkStartError reports that the fork service could not establish a session
type ForkStartError struct {
	Source string
	Reason string
	Err    error
}

func (e *ForkStartError) Error() string {
	msg := fmt.Sprintf("failed to start fork of %s", e.Source)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ForkStartError) Unwrap() error { return e.Err }

// RevertError reports a rejected checkpoint restore
type RevertError struct {
	SnapshotID string
	Reason     string
	Err        error
}

func (e *RevertError) Error() string {
	msg := fmt.Sprintf("failed to revert to snapshot %s", e.SnapshotID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RevertError) Unwrap() error { return e.Err }

// ExecutionError reports a submission or receipt-wait failure. Hash is set when
// a transaction hash could be recovered, so the failure can still be traced.
type ExecutionError struct {
	Stage string
	Hash  *common.Hash
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Hash != nil {
		return fmt.Sprintf("%s failed (tx %s): %v", e.Stage, e.Hash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TraceError reports that there is nothing addressable to trace, or that the
// trace service failed
type TraceError struct {
	Reason string
	Err    error
}

func (e *TraceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trace failed: %s: %v", e.Reason, e.Err)
	}
	return "trace failed: " + e.Reason
}

func (e *TraceError) Unwrap() error { return e.Err }

var txHashPattern = regexp.MustCompile(`0x[0-9a-fA-F]{64}`)

// RecoverTxHash extracts the first transaction hash mentioned in an error's text
func RecoverTxHash(err error) *common.Hash {
	if err == nil {
		return nil
	}
	match := txHashPattern.FindString(err.Error())
	if match == "" {
		return nil
	}
	hash := common.HexToHash(match)
	return &hash
}
