package render

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/chainsmith/chasm/internal/domain"
)

// SnapshotsRenderer renders the snapshot history as a table, oldest first
type SnapshotsRenderer struct {
	out io.Writer
	now func() time.Time
}

// NewSnapshotsRenderer creates a new snapshots renderer
func NewSnapshotsRenderer(out io.Writer) *SnapshotsRenderer {
	return &SnapshotsRenderer{out: out, now: time.Now}
}

// RenderSnapshots renders the history and marks the head
func (r *SnapshotsRenderer) RenderSnapshots(snapshots []domain.Snapshot, headID string) error {
	if len(snapshots) == 0 {
		fmt.Fprintln(r.out, "No snapshots yet. Snapshots are taken before every local write or cheat action.")
		return nil
	}

	t := newTable(r.out)
	t.AppendHeader(table.Row{"", "ID", "ACTION", "TX", "STATUS", "AGE"})
	for _, snap := range snapshots {
		marker := ""
		if snap.ID == headID {
			marker = headStyle.Sprint("→")
		}
		tx := ""
		if snap.TxHash != nil {
			tx = hashStyle.Sprint(shorten(snap.TxHash.Hex()))
		}
		t.AppendRow(table.Row{
			marker,
			snap.LocalID,
			snap.Method,
			tx,
			statusText(snap),
			labelStyle.Sprint(formatDuration(r.now().Sub(snap.CreatedAt))),
		})
	}
	t.Render()
	return nil
}

func statusText(snap domain.Snapshot) string {
	status := string(snap.Status)
	if snap.BlockNumber != nil {
		status = fmt.Sprintf("%s @ %d", status, *snap.BlockNumber)
	}
	switch snap.Status {
	case domain.SnapshotConfirmed:
		return okStyle.Sprint(status)
	case domain.SnapshotError:
		return failStyle.Sprint(status)
	default:
		return pendingStyle.Sprint(status)
	}
}
