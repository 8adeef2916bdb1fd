package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ActionSpec is the loosely typed form of an action as written in plan files
// and tool arguments. It is only a parsing boundary; use ParseAction to get the
// typed Action.
type ActionSpec struct {
	Kind      string `json:"kind" yaml:"kind"`
	Account   string `json:"account,omitempty" yaml:"account,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Blocks    uint64 `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Wei       string `json:"wei,omitempty" yaml:"wei,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty" yaml:"nonce,omitempty"`
	Code      string `json:"code,omitempty" yaml:"code,omitempty"`
	Slot      string `json:"slot,omitempty" yaml:"slot,omitempty"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
}

// ParseAction validates a spec and converts it to its typed action
func ParseAction(spec ActionSpec) (Action, error) {
	kind := ActionKind(spec.Kind)

	var account common.Address
	switch kind {
	case ActionWarp, ActionRoll:
	default:
		if !common.IsHexAddress(spec.Account) {
			return nil, fmt.Errorf("%s: invalid account %q: %w", kind, spec.Account, ErrInvalidAddress)
		}
		account = common.HexToAddress(spec.Account)
	}

	switch kind {
	case ActionWarp:
		if spec.Timestamp == 0 {
			return nil, fmt.Errorf("warp: timestamp is required")
		}
		return Warp{Timestamp: spec.Timestamp}, nil
	case ActionRoll:
		blocks := spec.Blocks
		if blocks == 0 {
			blocks = 1
		}
		return Roll{Blocks: blocks}, nil
	case ActionSetBalance:
		wei, err := uint256.FromDecimal(spec.Wei)
		if err != nil {
			if wei, err = uint256.FromHex(spec.Wei); err != nil {
				return nil, fmt.Errorf("set-balance: invalid wei amount %q", spec.Wei)
			}
		}
		return SetBalance{Account: account, Wei: wei}, nil
	case ActionSetNonce:
		return SetNonce{Account: account, Nonce: spec.Nonce}, nil
	case ActionSetCode:
		code, err := hexutil.Decode(spec.Code)
		if err != nil {
			return nil, fmt.Errorf("set-code: invalid code: %w", err)
		}
		return SetCode{Account: account, Code: code}, nil
	case ActionSetStorage:
		slot, err := parseWord(spec.Slot)
		if err != nil {
			return nil, fmt.Errorf("set-storage: invalid slot: %w", err)
		}
		value, err := parseWord(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("set-storage: invalid value: %w", err)
		}
		return SetStorage{Account: account, Slot: slot, Value: value}, nil
	case ActionImpersonate:
		return Impersonate{Account: account}, nil
	case ActionStopImpersonate:
		return StopImpersonate{Account: account}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", spec.Kind)
	}
}

func parseWord(s string) (common.Hash, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("%d bytes exceeds a 32-byte word", len(b))
	}
	return common.BytesToHash(b), nil
}
