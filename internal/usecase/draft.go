package usecase

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/chainsmith/chasm/internal/domain"
)

// Draft is a call being authored either as structured fields or as a raw
// envelope. Both views describe the same call.
type Draft struct {
	req      domain.CallRequest
	contract *abi.ABI

	// argsEdited is set when Method/Args were changed but the calldata could
	// not be re-encoded from them
	argsEdited bool
}

// NewDraft starts a form-authored draft. contract may be nil.
func NewDraft(req domain.CallRequest, contract *abi.ABI) *Draft {
	req.Authoring = domain.AuthoringForm
	return &Draft{req: req, contract: contract}
}

// SetRaw replaces the draft with the decoded envelope
func (d *Draft) SetRaw(env domain.Envelope) error {
	req, err := FromRaw(env, d.contract)
	if err != nil {
		return err
	}
	d.req = *req
	d.argsEdited = false
	return nil
}

// SetCalldata replaces the calldata and re-derives Method/Args when possible
func (d *Draft) SetCalldata(data []byte) {
	d.req.Data = data
	d.req.Method = ""
	d.req.Args = nil
	d.argsEdited = false
	d.decodeArgs()
}

// SetArgs edits the structured call. With a contract interface the calldata is
// re-encoded; without one the calldata is left alone and Raw fails until the
// calldata is set again.
func (d *Draft) SetArgs(method string, args ...any) error {
	d.req.Authoring = domain.AuthoringForm
	if d.contract == nil {
		d.req.Method = method
		d.req.Args = args
		d.argsEdited = true
		return nil
	}

	data, err := d.contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", method, err)
	}
	d.req.Method = method
	d.req.Args = args
	d.req.Data = data
	if m, ok := d.contract.Methods[method]; ok {
		d.req.Mutability = domain.Mutability(m.StateMutability)
	}
	d.argsEdited = false
	return nil
}

// Update edits the non-calldata fields of the form view
func (d *Draft) Update(edit func(req *domain.CallRequest)) {
	data := d.req.Data
	edit(&d.req)
	d.req.Authoring = domain.AuthoringForm
	if !bytes.Equal(data, d.req.Data) {
		d.SetCalldata(d.req.Data)
	}
}

// Request returns the form view
func (d *Draft) Request() (*domain.CallRequest, error) {
	if d.argsEdited {
		return nil, domain.ErrCalldataNotDerivable
	}
	req := d.req
	return &req, nil
}

// Raw returns the envelope view
func (d *Draft) Raw() (domain.Envelope, error) {
	req, err := d.Request()
	if err != nil {
		return domain.Envelope{}, err
	}
	return ToRaw(req)
}

// Authoring returns the representation last edited
func (d *Draft) Authoring() domain.Authoring {
	return d.req.Authoring
}

func (d *Draft) decodeArgs() {
	if d.contract == nil || len(d.req.Data) < 4 {
		return
	}
	method, err := d.contract.MethodById(d.req.Data[:4])
	if err != nil {
		return
	}
	args, err := method.Inputs.Unpack(d.req.Data[4:])
	if err != nil {
		return
	}
	d.req.Method = method.Name
	d.req.Args = args
}
