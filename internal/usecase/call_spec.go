package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/chainsmith/chasm/internal/domain"
)

// CallSpec is the loosely typed form of a call as written in plan files, tool
// arguments and command flags. BuildCall validates it into a CallRequest.
//
// Either Raw (a JSON-RPC envelope) or the structured fields are used. Sig is a
// human signature such as "transfer(address,uint256)" or, for reads,
// "balanceOf(address)(uint256)"; Args are encoded against it.
type CallSpec struct {
	To         string   `json:"to,omitempty" yaml:"to,omitempty"`
	From       string   `json:"from,omitempty" yaml:"from,omitempty"`
	Value      string   `json:"value,omitempty" yaml:"value,omitempty"`
	Gas        uint64   `json:"gas,omitempty" yaml:"gas,omitempty"`
	Data       string   `json:"data,omitempty" yaml:"data,omitempty"`
	Sig        string   `json:"sig,omitempty" yaml:"sig,omitempty"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`
	Mutability string   `json:"mutability,omitempty" yaml:"mutability,omitempty"`
	Block      string   `json:"block,omitempty" yaml:"block,omitempty"`
	Raw        string   `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// BuiltCall is a validated call plus the method used to encode it, if any
type BuiltCall struct {
	Request *domain.CallRequest
	Method  *abi.Method
}

// DecodeReturn unpacks read return data against the signature's outputs.
// It returns nil when no outputs were declared.
func (b *BuiltCall) DecodeReturn(data []byte) ([]any, error) {
	if b.Method == nil || len(b.Method.Outputs) == 0 {
		return nil, nil
	}
	return b.Method.Outputs.Unpack(data)
}

// BuildCall converts a spec into a call request
func BuildCall(spec CallSpec) (*BuiltCall, error) {
	if strings.TrimSpace(spec.Raw) != "" {
		var env domain.Envelope
		if err := json.Unmarshal([]byte(spec.Raw), &env); err != nil {
			return nil, fmt.Errorf("invalid raw request: %w", err)
		}
		req, err := FromRaw(env, nil)
		if err != nil {
			return nil, err
		}
		return &BuiltCall{Request: req}, nil
	}

	req := domain.CallRequest{Gas: spec.Gas, BlockTag: spec.Block}

	var err error
	if req.To, err = parseAddress("to", spec.To); err != nil {
		return nil, err
	}
	if req.From, err = parseAddress("from", spec.From); err != nil {
		return nil, err
	}
	if spec.Value != "" {
		if req.Value, err = ParseValue(spec.Value); err != nil {
			return nil, err
		}
	}
	if spec.Data != "" {
		if req.Data, err = hexutil.Decode(spec.Data); err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
	}

	mutability := domain.Mutability(spec.Mutability)
	switch mutability {
	case "":
		mutability = domain.MutabilityNonPayable
		if req.Value != nil && req.Value.Sign() > 0 {
			mutability = domain.MutabilityPayable
		}
	case domain.MutabilityPure, domain.MutabilityView, domain.MutabilityNonPayable, domain.MutabilityPayable:
	default:
		return nil, fmt.Errorf("unknown mutability %q", spec.Mutability)
	}
	req.Mutability = mutability

	if spec.Sig == "" {
		if len(spec.Args) > 0 {
			return nil, errors.New("arguments given without a signature")
		}
		if req.To == nil && len(req.Data) == 0 {
			return nil, errors.New("deployment requires init code")
		}
		return &BuiltCall{Request: &req}, nil
	}

	method, err := ParseSignature(spec.Sig, mutability)
	if err != nil {
		return nil, err
	}
	args, err := ConvertArgs(method.Inputs, spec.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method.Sig, err)
	}

	if method.Type == abi.Constructor {
		if req.To != nil {
			return nil, errors.New("constructor signature given for a call to an existing contract")
		}
		encoded, err := method.Inputs.Pack(args...)
		if err != nil {
			return nil, fmt.Errorf("failed to encode constructor arguments: %w", err)
		}
		req.Data = append(req.Data, encoded...)
		return &BuiltCall{Request: &req, Method: method}, nil
	}
	if req.To == nil {
		return nil, fmt.Errorf("%s requires a target address", method.Sig)
	}

	contract := &abi.ABI{Methods: map[string]abi.Method{method.Name: *method}}
	draft := NewDraft(req, contract)
	if err := draft.SetArgs(method.Name, args...); err != nil {
		return nil, err
	}
	built, err := draft.Request()
	if err != nil {
		return nil, err
	}
	return &BuiltCall{Request: built, Method: method}, nil
}

// ParseSignature parses "name(types)" with an optional "(outputs)" suffix.
// The name "constructor" yields constructor arguments.
func ParseSignature(sig string, mutability domain.Mutability) (*abi.Method, error) {
	sig = strings.ReplaceAll(strings.TrimSpace(sig), " ", "")
	open := strings.IndexByte(sig, '(')
	if open <= 0 {
		return nil, fmt.Errorf("invalid signature %q: expected name(types)", sig)
	}
	name := sig[:open]

	inputsRaw, rest, err := splitParens(sig[open:])
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", sig, err)
	}
	var outputsRaw string
	if rest != "" {
		if outputsRaw, rest, err = splitParens(rest); err != nil || rest != "" {
			return nil, fmt.Errorf("invalid signature %q: unexpected %q", sig, rest)
		}
	}

	inputs, err := parseArguments(inputsRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", sig, err)
	}
	outputs, err := parseArguments(outputsRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", sig, err)
	}

	if mutability == "" {
		mutability = domain.MutabilityNonPayable
	}
	funType := abi.Function
	if name == "constructor" {
		funType = abi.Constructor
		name = ""
	}
	m := abi.NewMethod(name, name, funType, string(mutability),
		mutability.IsRead(), mutability == domain.MutabilityPayable, inputs, outputs)
	return &m, nil
}

// splitParens returns the contents of the leading balanced parenthesis group
// and whatever follows it
func splitParens(s string) (string, string, error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("expected '(' in %q", s)
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", errors.New("unbalanced parentheses")
}

func parseArguments(list string) (abi.Arguments, error) {
	if list == "" {
		return nil, nil
	}
	var args abi.Arguments
	for i, typ := range splitTopLevel(list) {
		t, err := abi.NewType(typ, "", nil)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: t})
	}
	return args, nil
}

// splitTopLevel splits on commas outside brackets and parentheses
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// ConvertArgs converts textual arguments to the Go values abi packing expects
func ConvertArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(raw))
	}
	out := make([]any, len(raw))
	for i, input := range inputs {
		v, err := convertArg(input.Type, strings.TrimSpace(raw[i]))
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, input.Type.String(), err)
		}
		out[i] = v.Interface()
	}
	return out, nil
}

func convertArg(t abi.Type, s string) (reflect.Value, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return reflect.Value{}, fmt.Errorf("%q: %w", s, domain.ErrInvalidAddress)
		}
		return reflect.ValueOf(common.HexToAddress(s)), nil
	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.StringTy:
		return reflect.ValueOf(s), nil
	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) > t.Size {
			return reflect.Value{}, fmt.Errorf("%d bytes do not fit bytes%d", len(b), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr, nil
	case abi.IntTy, abi.UintTy:
		n, err := parseInteger(s)
		if err != nil {
			return reflect.Value{}, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return reflect.Value{}, fmt.Errorf("negative value %s for %s", s, t.String())
		}
		bits := t.Size
		if t.T == abi.IntTy {
			bits--
		}
		if n.BitLen() > bits {
			return reflect.Value{}, fmt.Errorf("%s overflows %s", s, t.String())
		}
		goType := t.GetType()
		if goType == reflect.TypeOf(&big.Int{}) {
			return reflect.ValueOf(n), nil
		}
		if t.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(goType), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(goType), nil
	case abi.SliceTy, abi.ArrayTy:
		items := splitList(s)
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		var coll reflect.Value
		if t.T == abi.ArrayTy {
			coll = reflect.New(t.GetType()).Elem()
		} else {
			coll = reflect.MakeSlice(t.GetType(), len(items), len(items))
		}
		for i, item := range items {
			v, err := convertArg(*t.Elem, item)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			coll.Index(i).Set(v)
		}
		return coll, nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return splitTopLevel(s)
}

func parseInteger(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty integer")
	}
	neg := strings.HasPrefix(s, "-")
	n, ok := math.ParseBig256(strings.TrimPrefix(s, "-"))
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

// longest suffix first so "gwei" is not read as "wei"
var valueUnits = []struct {
	suffix string
	scale  *big.Int
}{
	{"ether", big.NewInt(1e18)},
	{"gwei", big.NewInt(1e9)},
	{"eth", big.NewInt(1e18)},
	{"wei", big.NewInt(1)},
}

// ParseValue parses a wei amount. Plain numbers (decimal or hex) are wei; a
// unit suffix such as "1.5ether" or "30 gwei" scales the amount.
func ParseValue(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, unit := range valueUnits {
		amount, ok := strings.CutSuffix(s, unit.suffix)
		if !ok {
			continue
		}
		amount = strings.TrimSpace(amount)
		r, ok := new(big.Rat).SetString(amount)
		if !ok || r.Sign() < 0 {
			return nil, fmt.Errorf("invalid value %q", s)
		}
		r.Mul(r, new(big.Rat).SetInt(unit.scale))
		if !r.IsInt() {
			return nil, fmt.Errorf("value %q is not a whole number of wei", s)
		}
		return new(big.Int).Set(r.Num()), nil
	}

	v, ok := math.ParseBig256(s)
	if !ok || s == "" {
		return nil, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}
