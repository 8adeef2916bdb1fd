package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/chainsmith/chasm/internal/adapters/interactive"
	"github.com/chainsmith/chasm/internal/app"
	"github.com/chainsmith/chasm/internal/cli/render"
	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// execFlags are the call fields shared by call, send and deploy
type execFlags struct {
	from  string
	value string
	gas   uint64
	data  string
	block string
	raw   string
	yes   bool
	trace bool
}

func (f *execFlags) register(cmd *cobra.Command, write bool) {
	cmd.Flags().StringVar(&f.from, "from", "", "Sender address (defaults to the signing key's address)")
	cmd.Flags().StringVar(&f.value, "value", "", "Value to send, in wei or with a unit (e.g. 0.1ether, 5gwei)")
	cmd.Flags().Uint64Var(&f.gas, "gas", 0, "Gas limit (estimated when zero)")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Trace the execution afterwards, even when it fails")
	if write {
		cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Skip the confirmation prompt for live transactions")
		return
	}
	cmd.Flags().StringVar(&f.block, "block", "", "Block tag or number to read at (default latest)")
}

func (f *execFlags) spec() usecase.CallSpec {
	return usecase.CallSpec{
		From:  f.from,
		Value: f.value,
		Gas:   f.gas,
		Data:  f.data,
		Block: f.block,
		Raw:   f.raw,
	}
}

// NewCallCmd creates the call command
func NewCallCmd() *cobra.Command {
	var flags execFlags

	cmd := &cobra.Command{
		Use:   "call <to> [signature] [args...]",
		Short: "Read from a contract without sending a transaction",
		Long: `Run an eth_call against the current mode's network.

The signature may declare outputs so the return data is decoded.

Examples:
  chasm call 0xA0b8...eB48 "balanceOf(address)(uint256)" 0xf39F...2266
  chasm call 0xA0b8...eB48 --data 0x18160ddd
  chasm call --raw '{"method":"eth_call","params":[{"to":"0x...","data":"0x..."}]}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := flags.spec()
			spec.Mutability = string(domain.MutabilityView)
			if err := positionalCall(&spec, args); err != nil {
				return err
			}
			return execute(cmd, spec, flags)
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&flags.data, "data", "", "Raw calldata instead of a signature")
	cmd.Flags().StringVar(&flags.raw, "raw", "", "A JSON-RPC request to run as-is")

	return cmd
}

// NewSendCmd creates the send command
func NewSendCmd() *cobra.Command {
	var flags execFlags

	cmd := &cobra.Command{
		Use:   "send <to> [signature] [args...]",
		Short: "Send a transaction",
		Long: `Sign and send a transaction on the current mode's network and wait for its receipt.

In local mode a snapshot is taken first so the transaction can be reverted.
In live mode you are asked to confirm unless --yes is given.

Examples:
  chasm send 0xA0b8...eB48 "transfer(address,uint256)" 0x7099...79C8 1000000
  chasm send 0x7099...79C8 --value 0.5ether
  chasm --mode local send 0xA0b8...eB48 "pause()" --trace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := flags.spec()
			if err := positionalCall(&spec, args); err != nil {
				return err
			}
			return execute(cmd, spec, flags)
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&flags.data, "data", "", "Raw calldata instead of a signature")
	cmd.Flags().StringVar(&flags.raw, "raw", "", "A JSON-RPC eth_sendTransaction request to run as-is")

	return cmd
}

// NewDeployCmd creates the deploy command
func NewDeployCmd() *cobra.Command {
	var (
		flags execFlags
		sig   string
	)

	cmd := &cobra.Command{
		Use:   "deploy <artifact|bytecode> [constructor-args...]",
		Short: "Deploy a contract",
		Long: `Deploy init code given as hex, a file holding hex, or a Foundry/Hardhat artifact.

Constructor arguments are encoded against the artifact's ABI, or against
--sig when the bytecode comes without one.

Examples:
  chasm deploy out/Counter.sol/Counter.json 42
  chasm deploy 0x6080... --sig "constructor(address)" 0xf39F...2266`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := loadArtifact(args[0])
			if err != nil {
				return err
			}

			spec := flags.spec()
			spec.Data = hexutil.Encode(artifact.bytecode)
			ctorArgs := args[1:]

			if sig != "" || artifact.abi == nil {
				if sig == "" && len(ctorArgs) > 0 {
					return errors.New("constructor arguments need --sig when the bytecode has no ABI")
				}
				if sig != "" {
					spec.Sig = sig
					spec.Args = ctorArgs
				}
				return execute(cmd, spec, flags)
			}

			built, err := usecase.BuildCall(spec)
			if err != nil {
				return err
			}
			inputs := artifact.abi.Constructor.Inputs
			values, err := usecase.ConvertArgs(inputs, ctorArgs)
			if err != nil {
				return fmt.Errorf("constructor: %w", err)
			}
			if len(inputs) > 0 {
				packed, err := inputs.Pack(values...)
				if err != nil {
					return fmt.Errorf("failed to encode constructor arguments: %w", err)
				}
				built.Request.Data = append(built.Request.Data, packed...)
			}
			return run(cmd, built, flags)
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&sig, "sig", "", `Constructor signature, e.g. "constructor(uint256,address)"`)

	return cmd
}

// positionalCall fills to, signature and args from positional arguments
func positionalCall(spec *usecase.CallSpec, args []string) error {
	if spec.Raw != "" {
		if len(args) > 0 {
			return errors.New("--raw cannot be combined with positional arguments")
		}
		return nil
	}
	if len(args) == 0 {
		return errors.New("a target address is required")
	}
	spec.To = args[0]
	if len(args) > 1 {
		if spec.Data != "" {
			return errors.New("--data cannot be combined with a signature")
		}
		spec.Sig = args[1]
		spec.Args = args[2:]
	}
	return nil
}

func execute(cmd *cobra.Command, spec usecase.CallSpec, flags execFlags) error {
	built, err := usecase.BuildCall(spec)
	if err != nil {
		return err
	}
	return run(cmd, built, flags)
}

func run(cmd *cobra.Command, built *usecase.BuiltCall, flags execFlags) error {
	a, session, err := getSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	req := built.Request

	if !req.IsRead() && !session.Mode().IsLocal() && !flags.yes {
		if err := confirmLive(cmd, a, req); err != nil {
			return err
		}
	}

	result, execErr := session.Execute(ctx, req)

	var decoded []any
	if execErr == nil && result.Kind == domain.ResultRead {
		if decoded, err = built.DecodeReturn(result.ReturnData); err != nil {
			a.Logger.Warn("could not decode return data", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	if execErr == nil {
		if a.Config.JSON {
			if err := render.RenderJSON(out, result); err != nil {
				return err
			}
		} else if err := render.NewResultRenderer(out).RenderResult(result, decoded); err != nil {
			return err
		}
	}

	if flags.trace {
		trace, err := session.TraceLast(ctx)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), render.FormatWarning(fmt.Sprintf("trace failed: %v", err)))
		} else if err := render.NewResultRenderer(out).RenderTrace(trace); err != nil {
			return err
		}
	}

	if execErr != nil {
		return execErr
	}
	if result.Reverted {
		return errors.New("transaction reverted")
	}
	return nil
}

func confirmLive(cmd *cobra.Command, a *app.App, req *domain.CallRequest) error {
	prompt := fmt.Sprintf("Send %s on the LIVE network %s", req.Label(), a.Config.LiveEndpoint().URL)
	ok, err := a.Selector.Confirm(cmd.Context(), prompt)
	if errors.Is(err, interactive.ErrNonInteractive) {
		return errors.New("refusing to send a live transaction without confirmation; pass --yes")
	}
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("aborted")
	}
	return nil
}

type artifact struct {
	bytecode []byte
	abi      *abi.ABI
}

// loadArtifact accepts inline hex, a file of hex, or a JSON artifact with
// "abi" and "bytecode" (either a string or {"object": ...})
func loadArtifact(ref string) (*artifact, error) {
	if strings.HasPrefix(ref, "0x") {
		code, err := hexutil.Decode(ref)
		if err != nil {
			return nil, fmt.Errorf("invalid bytecode: %w", err)
		}
		return &artifact{bytecode: code}, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(ref), ".json") {
		code, err := hexutil.Decode(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid bytecode in %s: %w", ref, err)
		}
		return &artifact{bytecode: code}, nil
	}

	var raw struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", ref, err)
	}

	var code string
	if err := json.Unmarshal(raw.Bytecode, &code); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw.Bytecode, &obj); err != nil {
			return nil, fmt.Errorf("artifact %s has no bytecode", ref)
		}
		code = obj.Object
	}
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("artifact %s has empty bytecode (abstract contract or interface?)", ref)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode in %s: %w", ref, err)
	}

	out := &artifact{bytecode: bytecode}
	if len(raw.ABI) > 0 {
		parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
		if err != nil {
			return nil, fmt.Errorf("invalid ABI in %s: %w", ref, err)
		}
		out.abi = &parsed
	}
	return out, nil
}
