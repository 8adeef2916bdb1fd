package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ActionKind names a cheat action against the local test network
type ActionKind string

const (
	ActionWarp            ActionKind = "warp"
	ActionRoll            ActionKind = "roll"
	ActionSetBalance      ActionKind = "set-balance"
	ActionSetNonce        ActionKind = "set-nonce"
	ActionSetCode         ActionKind = "set-code"
	ActionSetStorage      ActionKind = "set-storage"
	ActionImpersonate     ActionKind = "impersonate"
	ActionStopImpersonate ActionKind = "stop-impersonate"
)

// RPCCall is a single JSON-RPC invocation an action lowers to
type RPCCall struct {
	Method string
	Params []any
}

// Action is a cheat action applied to the local network. The set of
// implementations is closed: one struct per kind, each with only its fields.
type Action interface {
	Kind() ActionKind
	// Calls returns the RPC invocations that apply the action, in order
	Calls() []RPCCall
	// Target returns the account the action touches, if any
	Target() *common.Address

	isAction()
}

// Warp sets the timestamp of the next block and mines it
type Warp struct {
	Timestamp uint64
}

// Roll mines Blocks empty blocks
type Roll struct {
	Blocks uint64
}

// SetBalance overwrites an account balance
type SetBalance struct {
	Account common.Address
	Wei     *uint256.Int
}

// SetNonce overwrites an account nonce
type SetNonce struct {
	Account common.Address
	Nonce   uint64
}

// SetCode replaces the code at an address
type SetCode struct {
	Account common.Address
	Code    []byte
}

// SetStorage writes a single storage slot
type SetStorage struct {
	Account common.Address
	Slot    common.Hash
	Value   common.Hash
}

// Impersonate lets transactions be sent from Account without its key
type Impersonate struct {
	Account common.Address
}

// StopImpersonate undoes Impersonate
type StopImpersonate struct {
	Account common.Address
}

func (Warp) Kind() ActionKind            { return ActionWarp }
func (Roll) Kind() ActionKind            { return ActionRoll }
func (SetBalance) Kind() ActionKind      { return ActionSetBalance }
func (SetNonce) Kind() ActionKind        { return ActionSetNonce }
func (SetCode) Kind() ActionKind         { return ActionSetCode }
func (SetStorage) Kind() ActionKind      { return ActionSetStorage }
func (Impersonate) Kind() ActionKind     { return ActionImpersonate }
func (StopImpersonate) Kind() ActionKind { return ActionStopImpersonate }

func (a Warp) Calls() []RPCCall {
	return []RPCCall{
		{Method: "evm_setNextBlockTimestamp", Params: []any{hexutil.Uint64(a.Timestamp)}},
		{Method: "evm_mine", Params: []any{}},
	}
}

func (a Roll) Calls() []RPCCall {
	return []RPCCall{{Method: "anvil_mine", Params: []any{hexutil.Uint64(a.Blocks)}}}
}

func (a SetBalance) Calls() []RPCCall {
	wei := a.Wei
	if wei == nil {
		wei = uint256.NewInt(0)
	}
	return []RPCCall{{Method: "anvil_setBalance", Params: []any{a.Account, wei.Hex()}}}
}

func (a SetNonce) Calls() []RPCCall {
	return []RPCCall{{Method: "anvil_setNonce", Params: []any{a.Account, hexutil.Uint64(a.Nonce)}}}
}

func (a SetCode) Calls() []RPCCall {
	return []RPCCall{{Method: "anvil_setCode", Params: []any{a.Account, hexutil.Bytes(a.Code)}}}
}

func (a SetStorage) Calls() []RPCCall {
	return []RPCCall{{Method: "anvil_setStorageAt", Params: []any{a.Account, a.Slot, a.Value}}}
}

func (a Impersonate) Calls() []RPCCall {
	return []RPCCall{{Method: "anvil_impersonateAccount", Params: []any{a.Account}}}
}

func (a StopImpersonate) Calls() []RPCCall {
	return []RPCCall{{Method: "anvil_stopImpersonatingAccount", Params: []any{a.Account}}}
}

func (Warp) Target() *common.Address              { return nil }
func (Roll) Target() *common.Address              { return nil }
func (a SetBalance) Target() *common.Address      { return &a.Account }
func (a SetNonce) Target() *common.Address        { return &a.Account }
func (a SetCode) Target() *common.Address         { return &a.Account }
func (a SetStorage) Target() *common.Address      { return &a.Account }
func (a Impersonate) Target() *common.Address     { return &a.Account }
func (a StopImpersonate) Target() *common.Address { return &a.Account }

func (Warp) isAction()            {}
func (Roll) isAction()            {}
func (SetBalance) isAction()      {}
func (SetNonce) isAction()        {}
func (SetCode) isAction()         {}
func (SetStorage) isAction()      {}
func (Impersonate) isAction()     {}
func (StopImpersonate) isAction() {}

// ActionLabel is the snapshot label for an action
func ActionLabel(a Action) string {
	switch v := a.(type) {
	case Warp:
		return fmt.Sprintf("warp %d", v.Timestamp)
	case Roll:
		return fmt.Sprintf("roll +%d", v.Blocks)
	default:
		if t := a.Target(); t != nil {
			return fmt.Sprintf("%s %s", a.Kind(), t.Hex())
		}
		return string(a.Kind())
	}
}
