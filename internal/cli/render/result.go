package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"

	"github.com/chainsmith/chasm/internal/domain"
)

// ResultRenderer renders execution results, snapshots and traces
type ResultRenderer struct {
	out io.Writer
}

// NewResultRenderer creates a new result renderer
func NewResultRenderer(out io.Writer) *ResultRenderer {
	return &ResultRenderer{out: out}
}

// ModeBadge renders a mode the way the dashboard shows it
func ModeBadge(mode domain.Mode) string {
	if mode.IsLocal() {
		return localStyle.Sprint("LOCAL")
	}
	return liveStyle.Sprint("LIVE")
}

// RenderResult renders a finished call. decoded holds the unpacked return
// values of a read, when the signature declared outputs.
func (r *ResultRenderer) RenderResult(result *domain.ExecutionResult, decoded []any) error {
	fmt.Fprintf(r.out, "%s %s %s\n", ModeBadge(result.Mode), result.Call.Label(), labelStyle.Sprint(result.Endpoint.URL))

	if result.Kind == domain.ResultRead {
		switch {
		case len(decoded) == 1:
			fmt.Fprintf(r.out, "  %s\n", formatValue(decoded[0]))
		case len(decoded) > 1:
			for i, v := range decoded {
				fmt.Fprintf(r.out, "  %s %s\n", labelStyle.Sprintf("[%d]", i), formatValue(v))
			}
		default:
			fmt.Fprintf(r.out, "  %s\n", hexutil.Encode(result.ReturnData))
		}
		return nil
	}

	status := okStyle.Sprint("✅ mined")
	switch {
	case result.Reverted:
		status = failStyle.Sprint("❌ reverted")
	case result.Stage == domain.TxSubmitted:
		status = pendingStyle.Sprint("⏳ submitted")
	}
	fmt.Fprintf(r.out, "  %-10s %s\n", labelStyle.Sprint("Status"), status)
	if result.TxHash != nil {
		fmt.Fprintf(r.out, "  %-10s %s\n", labelStyle.Sprint("Tx"), hashStyle.Sprint(result.TxHash.Hex()))
	}
	if result.Receipt != nil {
		fmt.Fprintf(r.out, "  %-10s %d\n", labelStyle.Sprint("Block"), result.BlockNumber())
		fmt.Fprintf(r.out, "  %-10s %d\n", labelStyle.Sprint("Gas used"), result.Receipt.GasUsed)
		if result.Receipt.ContractAddress != (common.Address{}) {
			fmt.Fprintf(r.out, "  %-10s %s\n", labelStyle.Sprint("Contract"), hashStyle.Sprint(result.Receipt.ContractAddress.Hex()))
		}
	}
	if result.SnapshotLocalID != "" {
		fmt.Fprintf(r.out, "  %-10s %s\n", labelStyle.Sprint("Snapshot"), result.SnapshotLocalID)
	}
	return nil
}

// RenderSnapshot renders the snapshot taken before a cheat action
func (r *ResultRenderer) RenderSnapshot(action domain.Action, snap *domain.Snapshot) error {
	fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Applied %s", domain.ActionLabel(action))))
	if snap != nil {
		fmt.Fprintf(r.out, "  %-10s %s (%s)\n", labelStyle.Sprint("Snapshot"), snap.LocalID, snap.ID)
	}
	return nil
}

// RenderTrace renders a trace, stripped of trailing blank lines
func (r *ResultRenderer) RenderTrace(trace *domain.Trace) error {
	text := strings.TrimRight(trace.Text(), "\n")
	if text == "" {
		fmt.Fprintln(r.out, FormatWarning("Trace came back empty"))
		return nil
	}
	fmt.Fprintln(r.out, color.New(color.Bold).Sprintf("Trace (%s) %s", trace.Kind, labelStyle.Sprint(trace.Endpoint)))
	fmt.Fprintln(r.out, text)
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case common.Address:
		return hashStyle.Sprint(val.Hex())
	case []byte:
		return hexutil.Encode(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
