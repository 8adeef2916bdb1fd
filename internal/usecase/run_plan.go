package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chainsmith/chasm/internal/domain"
)

// Plan is a scripted sequence of calls, cheat actions and reverts read from YAML
type Plan struct {
	Name      string     `yaml:"name"`
	Mode      string     `yaml:"mode,omitempty"`
	ForkBlock *uint64    `yaml:"fork_block,omitempty"`
	Steps     []PlanStep `yaml:"steps"`
}

// PlanStep is one entry of a plan. Exactly one of Call, Action or Revert is set.
type PlanStep struct {
	Name   string             `yaml:"name"`
	Call   *CallSpec          `yaml:"call,omitempty"`
	Action *domain.ActionSpec `yaml:"action,omitempty"`
	Revert string             `yaml:"revert,omitempty"`
	Trace  bool               `yaml:"trace,omitempty"`
	// Expect is "success" (default) or "revert"; calls only
	Expect string `yaml:"expect,omitempty"`
}

const (
	ExpectSuccess = "success"
	ExpectRevert  = "revert"
)

// Label names the step for output, falling back to its position
func (s *PlanStep) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", index+1)
}

func (s *PlanStep) validate(index int) error {
	set := 0
	if s.Call != nil {
		set++
	}
	if s.Action != nil {
		set++
	}
	if s.Revert != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%s: exactly one of call, action or revert is required", s.Label(index))
	}
	switch s.Expect {
	case "", ExpectSuccess:
	case ExpectRevert:
		if s.Call == nil {
			return fmt.Errorf("%s: expect: revert only applies to calls", s.Label(index))
		}
	default:
		return fmt.Errorf("%s: unknown expect %q", s.Label(index), s.Expect)
	}
	return nil
}

// LoadPlan reads and validates a plan file
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a YAML plan
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, errors.New("plan has no steps")
	}
	if plan.Mode != "" {
		if _, err := domain.ParseMode(plan.Mode); err != nil {
			return nil, err
		}
	}
	for i := range plan.Steps {
		if err := plan.Steps[i].validate(i); err != nil {
			return nil, err
		}
	}
	return &plan, nil
}

// PlanSession is the part of a Session a plan drives
type PlanSession interface {
	Mode() domain.Mode
	SetMode(mode domain.Mode) error
	StartFork(ctx context.Context, pinned *uint64) (domain.Endpoint, error)
	Execute(ctx context.Context, req *domain.CallRequest) (*domain.ExecutionResult, error)
	ApplyAction(ctx context.Context, action domain.Action) (*domain.Snapshot, error)
	FindSnapshot(query string) (*domain.Snapshot, error)
	RevertTo(ctx context.Context, externalID string) error
	TraceLast(ctx context.Context) (*domain.Trace, error)
}

// PlanStepResult is the outcome of one step
type PlanStepResult struct {
	Index    int
	Step     *PlanStep
	Result   *domain.ExecutionResult
	Decoded  []any
	Snapshot *domain.Snapshot
	Trace    *domain.Trace
	// Err is set when the step did not meet its expectation
	Err error
}

// Passed reports whether the step met its expectation
func (r *PlanStepResult) Passed() bool { return r.Err == nil }

// PlanResult is the outcome of a plan run
type PlanResult struct {
	Plan    *Plan
	Mode    domain.Mode
	Steps   []*PlanStepResult
	Success bool
}

// Failed returns the first failing step, if any
func (r *PlanResult) Failed() *PlanStepResult {
	for _, s := range r.Steps {
		if !s.Passed() {
			return s
		}
	}
	return nil
}

// RunPlanParams controls a plan run
type RunPlanParams struct {
	// Mode overrides the plan's own mode when set
	Mode domain.Mode
	// KeepGoing runs the remaining steps after a failure
	KeepGoing bool
}

// RunPlan executes plans against a session
type RunPlan struct {
	session  PlanSession
	progress ProgressSink
	log      *slog.Logger
}

// NewRunPlan creates a new plan runner
func NewRunPlan(session PlanSession, progress ProgressSink, log *slog.Logger) *RunPlan {
	return &RunPlan{session: session, progress: progress, log: log}
}

// Run executes the plan's steps in order. Step failures are reported in the
// result; the returned error is reserved for setup failures.
func (r *RunPlan) Run(ctx context.Context, plan *Plan, params RunPlanParams) (*PlanResult, error) {
	mode := params.Mode
	if mode == "" && plan.Mode != "" {
		mode, _ = domain.ParseMode(plan.Mode)
	}
	if mode != "" {
		if err := r.session.SetMode(mode); err != nil {
			return nil, err
		}
	}
	mode = r.session.Mode()

	if plan.ForkBlock != nil {
		if !mode.IsLocal() {
			return nil, errors.New("fork_block requires local mode")
		}
		r.progress.OnProgress(ctx, ProgressEvent{Stage: "fork", Message: fmt.Sprintf("Forking at block %d", *plan.ForkBlock), Spinner: true})
		if _, err := r.session.StartFork(ctx, plan.ForkBlock); err != nil {
			r.progress.Error("Failed to start fork")
			return nil, err
		}
		r.progress.Info("Fork started")
	}

	result := &PlanResult{Plan: plan, Mode: mode, Success: true}
	for i := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		step := &plan.Steps[i]
		r.progress.OnProgress(ctx, ProgressEvent{Stage: "step", Message: step.Label(i), Spinner: true})

		res := r.runStep(ctx, i, step)
		result.Steps = append(result.Steps, res)
		if res.Passed() {
			r.progress.Info(step.Label(i))
			continue
		}

		r.progress.Error(fmt.Sprintf("%s: %v", step.Label(i), res.Err))
		r.log.Warn("plan step failed", "plan", plan.Name, "step", step.Label(i), "error", res.Err)
		result.Success = false
		if !params.KeepGoing {
			break
		}
	}
	return result, nil
}

func (r *RunPlan) runStep(ctx context.Context, index int, step *PlanStep) *PlanStepResult {
	res := &PlanStepResult{Index: index, Step: step}

	switch {
	case step.Call != nil:
		r.runCall(ctx, step, res)
	case step.Action != nil:
		action, err := domain.ParseAction(*step.Action)
		if err != nil {
			res.Err = err
			return res
		}
		res.Snapshot, res.Err = r.session.ApplyAction(ctx, action)
	default:
		snap, err := r.session.FindSnapshot(step.Revert)
		if err != nil {
			res.Err = err
			return res
		}
		res.Snapshot = snap
		res.Err = r.session.RevertTo(ctx, snap.ID)
	}
	return res
}

func (r *RunPlan) runCall(ctx context.Context, step *PlanStep, res *PlanStepResult) {
	built, err := BuildCall(*step.Call)
	if err != nil {
		res.Err = err
		return
	}

	result, execErr := r.session.Execute(ctx, built.Request)
	res.Result = result
	if result != nil && result.Kind == domain.ResultRead && len(result.ReturnData) > 0 {
		if decoded, err := built.DecodeReturn(result.ReturnData); err == nil {
			res.Decoded = decoded
		} else {
			r.log.Debug("could not decode return data", "error", err)
		}
	}

	if step.Trace {
		trace, err := r.session.TraceLast(ctx)
		if err != nil {
			r.log.Warn("trace failed", "error", err)
		}
		res.Trace = trace
	}

	reverted := result != nil && result.Reverted
	var execFailure *domain.ExecutionError
	if execErr != nil && errors.As(execErr, &execFailure) {
		reverted = true
	}

	if step.Expect == ExpectRevert {
		switch {
		case reverted:
		case execErr != nil:
			res.Err = execErr
		default:
			res.Err = errors.New("expected the call to revert, but it succeeded")
		}
		return
	}

	switch {
	case execErr != nil:
		res.Err = execErr
	case reverted:
		res.Err = fmt.Errorf("transaction reverted")
		if result.TxHash != nil {
			res.Err = fmt.Errorf("transaction %s reverted", result.TxHash.Hex())
		}
	}
}
