package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	return strings.Join(lo.Compact(lines), "\n")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatStatus(st usecase.SessionStatus) string {
	lines := []string{
		section("Session"),
		kv("Mode", st.Mode),
		kv("Live endpoint", lo.Ternary(st.LiveEndpoint.URL == "", "(not configured)", st.LiveEndpoint.String())),
		kv("Live connected", yesNo(st.LiveConnected)),
		kv("Fork running", yesNo(st.Fork.Running)),
	}
	if st.Fork.Running && st.Fork.HasPort() {
		lines = append(lines, kv("Fork endpoint", st.Fork.Endpoint().String()))
	}
	lines = append(lines, kv("Snapshots", st.Snapshots))
	if st.HeadID != "" {
		lines = append(lines, kv("Active snapshot", st.HeadID))
	}
	if st.LatestBlock > 0 {
		lines = append(lines, kv("Latest block", st.LatestBlock))
	}
	return joinLines(lines...)
}

func formatResult(r *domain.ExecutionResult, decoded []any) string {
	if r.Kind == domain.ResultRead {
		lines := []string{
			section("Call Result"),
			kv("Mode", r.Mode),
			kv("Endpoint", r.Endpoint.String()),
			kv("Return data", r.ReturnData.String()),
		}
		for i, v := range decoded {
			lines = append(lines, kv(fmt.Sprintf("Output %d", i), v))
		}
		return joinLines(lines...)
	}

	status := "success"
	if r.Reverted {
		status = "reverted (call chasm_trace for details)"
	}
	lines := []string{
		section("Transaction"),
		kv("Mode", r.Mode),
		kv("Endpoint", r.Endpoint.String()),
		kv("Status", status),
	}
	if r.TxHash != nil {
		lines = append(lines, kv("Hash", r.TxHash.Hex()))
	}
	if r.Receipt != nil {
		lines = append(lines,
			kv("Block", r.BlockNumber()),
			kv("Gas used", r.Receipt.GasUsed),
		)
		if r.Receipt.ContractAddress != (common.Address{}) {
			lines = append(lines, kv("Contract", r.Receipt.ContractAddress.Hex()))
		}
	}
	if r.SnapshotLocalID != "" {
		lines = append(lines, kv("Snapshot", r.SnapshotLocalID))
	}
	return joinLines(lines...)
}

func formatSnapshots(list []domain.Snapshot, head string) string {
	if len(list) == 0 {
		return "No snapshots. Snapshots are taken before every local write or cheat action."
	}
	lines := []string{section(fmt.Sprintf("Snapshots (%d)", len(list)))}
	for _, s := range list {
		marker := "  "
		if s.ID == head {
			marker = "* "
		}
		line := fmt.Sprintf("%s%-8s %-10s %-24s", marker, s.ID, s.Status, s.Method)
		if s.TxHash != nil {
			line += " " + s.TxHash.Hex()
		}
		if s.BlockNumber != nil {
			line += fmt.Sprintf(" @%d", *s.BlockNumber)
		}
		lines = append(lines, strings.TrimRight(line, " "))
	}
	return joinLines(lines...)
}

func formatExecutionError(err error) string {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) && execErr.Hash != nil {
		return fmt.Sprintf("Execution failed: %v\n\nThe transaction %s was submitted; call chasm_trace to inspect it.", err, execErr.Hash.Hex())
	}
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return fmt.Sprintf("Configuration error: %v", err)
	}
	return fmt.Sprintf("Execution failed: %v\n\nCall chasm_trace to inspect the failed call.", err)
}
