package render

import (
	"fmt"
	"io"

	"github.com/chainsmith/chasm/internal/domain"
)

// ForkRenderer handles rendering of fork command results
type ForkRenderer struct {
	out io.Writer
}

// NewForkRenderer creates a new ForkRenderer
func NewForkRenderer(out io.Writer) *ForkRenderer {
	return &ForkRenderer{out: out}
}

// RenderStarted renders a freshly started (or reused) fork
func (r *ForkRenderer) RenderStarted(endpoint domain.Endpoint, fork domain.ForkSession) error {
	fmt.Fprintln(r.out, FormatSuccess("Fork is running"))
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  Fork URL:     %s\n", endpoint.URL)
	r.renderSource(fork)
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Run 'chasm fork status' to check fork state")
	fmt.Fprintln(r.out, "Run 'chasm fork stop' to stop the fork")
	return nil
}

// RenderStopped renders the result of fork stop
func (r *ForkRenderer) RenderStopped() error {
	fmt.Fprintln(r.out, FormatSuccess("Fork stopped, local snapshots dropped"))
	return nil
}

// RenderStatus renders the fork service's view of the fork
func (r *ForkRenderer) RenderStatus(fork domain.ForkSession) error {
	if !fork.Running {
		fmt.Fprintln(r.out, "No active fork")
		return nil
	}

	fmt.Fprintln(r.out, "Active Fork")
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  Fork URL:     %s\n", domain.ForkURL(fork.Port))
	r.renderSource(fork)
	return nil
}

func (r *ForkRenderer) renderSource(fork domain.ForkSession) {
	if fork.SourceURL != "" {
		fmt.Fprintf(r.out, "  Forked from:  %s\n", fork.SourceURL)
	}
	if fork.PinnedBlock != nil {
		fmt.Fprintf(r.out, "  Block:        %d\n", *fork.PinnedBlock)
	} else {
		fmt.Fprintf(r.out, "  Block:        %s\n", "latest")
	}
}
