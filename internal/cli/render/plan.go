package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/chainsmith/chasm/internal/usecase"
)

// PlanRenderer renders plan runs
type PlanRenderer struct {
	out io.Writer
}

// NewPlanRenderer creates a new plan renderer
func NewPlanRenderer(out io.Writer) *PlanRenderer {
	return &PlanRenderer{out: out}
}

// RenderPlan renders one row per executed step and a summary line
func (r *PlanRenderer) RenderPlan(result *usecase.PlanResult) error {
	name := result.Plan.Name
	if name == "" {
		name = "plan"
	}
	fmt.Fprintf(r.out, "%s %s\n\n", ModeBadge(result.Mode), cases.Title(language.English).String(name))

	t := newTable(r.out)
	t.AppendHeader(table.Row{"#", "STEP", "KIND", "OUTCOME"})
	for _, step := range result.Steps {
		t.AppendRow(table.Row{
			step.Index + 1,
			step.Step.Label(step.Index),
			stepKind(step.Step),
			stepOutcome(step),
		})
	}
	t.Render()
	fmt.Fprintln(r.out)

	skipped := len(result.Plan.Steps) - len(result.Steps)
	switch {
	case result.Success:
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("%d step(s) passed", len(result.Steps))))
	case skipped > 0:
		fmt.Fprintln(r.out, FormatError(fmt.Sprintf("step %d failed, %d step(s) not run", result.Failed().Index+1, skipped)))
	default:
		fmt.Fprintln(r.out, FormatError(fmt.Sprintf("step %d failed", result.Failed().Index+1)))
	}

	for _, step := range result.Steps {
		if step.Trace != nil {
			fmt.Fprintln(r.out)
			fmt.Fprintf(r.out, "── %s\n", step.Step.Label(step.Index))
			_ = NewResultRenderer(r.out).RenderTrace(step.Trace)
		}
	}
	return nil
}

func stepKind(step *usecase.PlanStep) string {
	switch {
	case step.Call != nil:
		return "call"
	case step.Action != nil:
		return step.Action.Kind
	default:
		return "revert"
	}
}

func stepOutcome(step *usecase.PlanStepResult) string {
	if !step.Passed() {
		return failStyle.Sprint(step.Err.Error())
	}
	switch {
	case len(step.Decoded) > 0:
		return okStyle.Sprint(formatValue(step.Decoded[0]))
	case step.Result != nil && step.Result.Reverted:
		return okStyle.Sprint("reverted as expected")
	case step.Result != nil && step.Result.TxHash != nil:
		return okStyle.Sprintf("mined %s", shorten(step.Result.TxHash.Hex()))
	case step.Snapshot != nil && step.Step.Revert != "":
		return okStyle.Sprintf("back at %s", step.Snapshot.LocalID)
	case step.Snapshot != nil:
		return okStyle.Sprintf("snapshot %s", step.Snapshot.LocalID)
	default:
		return okStyle.Sprint("ok")
	}
}
