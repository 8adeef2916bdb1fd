package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// JSON-RPC method names produced by the request pipeline
const (
	MethodCall            = "eth_call"
	MethodSendTransaction = "eth_sendTransaction"
	JSONRPCVersion        = "2.0"
	BlockTagLatest        = "latest"
)

// Authoring records which representation of a call the operator last edited
type Authoring string

const (
	AuthoringForm Authoring = "form"
	AuthoringRaw  Authoring = "raw"
)

// Mutability is the ABI state mutability the caller supplies for a call
type Mutability string

const (
	MutabilityPure       Mutability = "pure"
	MutabilityView       Mutability = "view"
	MutabilityNonPayable Mutability = "nonpayable"
	MutabilityPayable    Mutability = "payable"
)

// IsRead returns true for calls that must not be sent as transactions
func (m Mutability) IsRead() bool {
	return m == MutabilityView || m == MutabilityPure
}

// CallRequest is the structured (form) description of a call or transaction
type CallRequest struct {
	Authoring  Authoring       `json:"authoring,omitempty"`
	From       *common.Address `json:"from,omitempty"`
	To         *common.Address `json:"to,omitempty"` // nil deploys Data as init code
	Value      *big.Int        `json:"value,omitempty"`
	Data       []byte          `json:"data,omitempty"`
	Gas        uint64          `json:"gas,omitempty"`
	Mutability Mutability      `json:"mutability,omitempty"`
	BlockTag   string          `json:"blockTag,omitempty"` // reads only, defaults to latest

	// Structured fields, only populated when an ABI was available
	Method string `json:"method,omitempty"`
	Args   []any  `json:"args,omitempty"`

	// RequestID is the JSON-RPC id of the envelope this request came from
	RequestID json.RawMessage `json:"requestId,omitempty"`
}

// IsDeploy returns true for contract creation
func (r *CallRequest) IsDeploy() bool {
	return r.To == nil
}

// IsRead returns true when the call is dispatched as eth_call
func (r *CallRequest) IsRead() bool {
	return !r.IsDeploy() && r.Mutability.IsRead()
}

// Label returns the human label used for snapshots and history
func (r *CallRequest) Label() string {
	switch {
	case r.Method != "":
		return r.Method
	case r.IsDeploy():
		return "Deploy"
	case len(r.Data) == 0 && r.Value != nil && r.Value.Sign() > 0:
		return "Send ETH"
	case len(r.Data) >= 4:
		return hexutil.Encode(r.Data[:4])
	default:
		return "call"
	}
}

// ActionInfo returns the snapshot metadata for this request
func (r *CallRequest) ActionInfo() ActionInfo {
	return ActionInfo{
		Method: r.Label(),
		From:   r.From,
		To:     r.To,
		Value:  r.Value,
	}
}

// Selector returns the 4-byte function selector, if the calldata has one
func (r *CallRequest) Selector() []byte {
	if len(r.Data) < 4 {
		return nil
	}
	return r.Data[:4]
}

// CallObject is the transaction object carried in a raw JSON-RPC envelope.
// Fields are kept as text so that raw authoring round-trips exactly.
type CallObject struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Gas   string `json:"gas,omitempty"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// UnmarshalJSON accepts "input" as an alias for "data" and bare JSON numbers
// for the quantity fields.
func (c *CallObject) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	fields := map[string]*string{
		"from":  &c.From,
		"to":    &c.To,
		"gas":   &c.Gas,
		"value": &c.Value,
		"data":  &c.Data,
		"input": &c.Data,
	}
	for key, target := range fields {
		msg, ok := raw[key]
		if !ok || bytes.Equal(msg, []byte("null")) {
			continue
		}
		if key == "input" && c.Data != "" {
			continue
		}
		s, err := textOrNumber(msg)
		if err != nil {
			return fmt.Errorf("invalid %q field: %w", key, err)
		}
		*target = s
	}
	return nil
}

func textOrNumber(msg json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// RawParams is the positional params array of an envelope
type RawParams struct {
	Call     CallObject
	BlockTag string // empty for eth_sendTransaction
}

// Envelope is the raw JSON-RPC request representation of a call
type Envelope struct {
	JSONRPC string
	// ID is kept verbatim: a number, a string or null
	ID      json.RawMessage
	Method  string
	Params  RawParams
}

// DefaultRequestID is the id given to envelopes built without one
const DefaultRequestID = "1"

type envelopeJSON struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	call, err := json.Marshal(e.Params.Call)
	if err != nil {
		return nil, err
	}
	params := []json.RawMessage{call}
	if e.Params.BlockTag != "" {
		tag, _ := json.Marshal(e.Params.BlockTag)
		params = append(params, tag)
	}
	id := e.ID
	if len(id) == 0 {
		id = json.RawMessage(DefaultRequestID)
	}
	return json.Marshal(envelopeJSON{
		JSONRPC: e.JSONRPC,
		ID:      id,
		Method:  e.Method,
		Params:  params,
	})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := validateRequestID(raw.ID); err != nil {
		return err
	}
	if len(raw.Params) == 0 {
		return fmt.Errorf("envelope has no params")
	}
	if len(raw.Params) > 2 {
		return fmt.Errorf("envelope has %d params, expected at most 2", len(raw.Params))
	}
	var params RawParams
	if err := json.Unmarshal(raw.Params[0], &params.Call); err != nil {
		return fmt.Errorf("invalid call object: %w", err)
	}
	if len(raw.Params) == 2 {
		if err := json.Unmarshal(raw.Params[1], &params.BlockTag); err != nil {
			return fmt.Errorf("invalid block tag: %w", err)
		}
	}
	e.JSONRPC = raw.JSONRPC
	e.ID = raw.ID
	e.Method = raw.Method
	e.Params = params
	return nil
}

func validateRequestID(id json.RawMessage) error {
	if len(id) == 0 {
		return nil
	}
	switch id[0] {
	case '{', '[', 't', 'f':
		return fmt.Errorf("invalid id %s: must be a number, a string or null", id)
	}
	return nil
}

// ResultKind distinguishes read results from transactions
type ResultKind string

const (
	ResultRead        ResultKind = "read"
	ResultTransaction ResultKind = "transaction"
)

// TxStage tracks how far a transaction result has progressed
type TxStage string

const (
	TxSubmitted      TxStage = "submitted"
	TxReceiptFetched TxStage = "receipt-fetched"
)

// ExecutionResult is the outcome of dispatching a CallRequest.
// Endpoint and Call are carried so a later trace targets the node that ran it.
type ExecutionResult struct {
	Kind     ResultKind  `json:"kind"`
	Mode     Mode        `json:"mode"`
	Endpoint Endpoint    `json:"endpoint"`
	Call     CallRequest `json:"call"`

	ReturnData hexutil.Bytes `json:"returnData,omitempty"`

	Stage       TxStage            `json:"stage,omitempty"`
	TxHash      *common.Hash       `json:"txHash,omitempty"`
	Receipt     *types.Receipt     `json:"receipt,omitempty"`
	Transaction *types.Transaction `json:"transaction,omitempty"`
	Reverted    bool               `json:"reverted,omitempty"`

	SnapshotLocalID string `json:"snapshotLocalId,omitempty"`
}

// BlockNumber returns the receipt's block number, or zero before the receipt is fetched
func (r *ExecutionResult) BlockNumber() uint64 {
	if r.Receipt == nil || r.Receipt.BlockNumber == nil {
		return 0
	}
	return r.Receipt.BlockNumber.Uint64()
}
