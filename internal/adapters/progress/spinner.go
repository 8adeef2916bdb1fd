package progress

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/chainsmith/chasm/internal/usecase"
)

// SpinnerSink shows a spinner while a step is in flight. Info and Error end
// the current step and print a line.
type SpinnerSink struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	out     io.Writer
	stage   string
	started time.Time
}

// NewSpinnerSink creates a spinner sink writing to stderr
func NewSpinnerSink() *SpinnerSink {
	return newSpinnerSink(os.Stderr)
}

func newSpinnerSink(out io.Writer) *SpinnerSink {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.HideCursor = false
	return &SpinnerSink{spinner: s, out: out}
}

// OnProgress starts or updates the spinner
func (r *SpinnerSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !event.Spinner {
		r.stopLocked()
		return
	}
	if event.Stage != r.stage {
		r.stage = event.Stage
		r.started = time.Now()
	}
	r.spinner.Suffix = " " + event.Message
	if !r.spinner.Active() {
		r.spinner.Start()
	}
}

// Info prints a success line
func (r *SpinnerSink) Info(message string) {
	r.finish(color.New(color.FgGreen), "✓ ", message)
}

// Error prints a failure line
func (r *SpinnerSink) Error(message string) {
	r.finish(color.New(color.FgRed), "✗ ", message)
}

func (r *SpinnerSink) finish(c *color.Color, icon, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := ""
	if !r.started.IsZero() {
		elapsed = color.New(color.Faint).Sprintf(" (%s)", time.Since(r.started).Round(time.Millisecond))
	}
	r.stopLocked()
	_, _ = c.Fprintln(r.out, icon+message+elapsed)
}

func (r *SpinnerSink) stopLocked() {
	if r.spinner.Active() {
		r.spinner.Stop()
	}
	r.stage = ""
	r.started = time.Time{}
}

var _ usecase.ProgressSink = (*SpinnerSink)(nil)
