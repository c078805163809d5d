package model

import (
	"fmt"
	"time"
)

// StageMode declares how a stage's steps are executed by the backend.
type StageMode string

const (
	StageModeSequential StageMode = "sequential"
	StageModeParallel   StageMode = "parallel"
)

// UploadStageName is the reserved name of the implicit first stage. It has
// no steps and derives its status from upload-completion state rather than
// from the execution backend.
const UploadStageName = "upload"

// Step is one stage phase consisting of zero or more jobs generated
// dynamically at submission time. A step exclusively owns its arguments and
// jobs; jobs are replaced, not mutated, on each reconciliation pass.
type Step struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`

	BatchArgs      []Argument `json:"batch_args"`
	SubmissionArgs []Argument `json:"submission_args"`

	// ExtraArgs is present only for steps with step-specific free-form
	// parameters (e.g. selecting a named sub-pipeline). nil means the step
	// has no such parameters.
	ExtraArgs []Argument `json:"extra_args,omitempty"`

	Jobs   []Job  `json:"jobs,omitempty"`
	Status Status `json:"status"`
}

// Unsatisfied returns a ref for every required-but-empty argument across
// the step's argument sets. An empty result means the step is submittable.
func (s *Step) Unsatisfied(stageName string) []ArgumentRef {
	var refs []ArgumentRef
	sets := []struct {
		name string
		args []Argument
	}{
		{ArgSetBatch, s.BatchArgs},
		{ArgSetSubmission, s.SubmissionArgs},
		{ArgSetExtra, s.ExtraArgs},
	}
	for _, set := range sets {
		for _, a := range set.args {
			if !a.Satisfied() {
				refs = append(refs, ArgumentRef{
					Stage: stageName,
					Step:  s.Name,
					Set:   set.name,
					Name:  a.Name,
				})
			}
		}
	}
	return refs
}

// Stage is an ordered sequence of steps executed in a declared mode.
type Stage struct {
	Name   string    `json:"name"`
	Mode   StageMode `json:"mode"`
	Active bool      `json:"active"`
	Steps  []Step    `json:"steps"`
	Status Status    `json:"status"`
}

// IsUpload reports whether this is the reserved upload stage.
func (s *Stage) IsUpload() bool {
	return s.Name == UploadStageName
}

// Workflow is the root aggregate: an ordered sequence of stages with an
// implicit upload stage prepended at index 0, plus a workflow-level status.
type Workflow struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Stages []Stage `json:"stages"`
	Status Status  `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowDescription is the user-authored, persistable form of a workflow:
// the processing stages only (the upload stage is prepended at construction
// and never persisted back), with no status or jobs.
type WorkflowDescription struct {
	Type   string             `json:"type" yaml:"type"`
	Stages []StageDescription `json:"stages" yaml:"stages"`
}

// StageDescription describes one processing stage. Active is a pointer so
// user-authored plans may omit it (treated as true); persisted descriptions
// carry it explicitly so inactive trailing stages survive a save/load cycle.
type StageDescription struct {
	Name   string            `json:"name" yaml:"name"`
	Mode   StageMode         `json:"mode" yaml:"mode"`
	Active *bool             `json:"active,omitempty" yaml:"active,omitempty"`
	Steps  []StepDescription `json:"steps" yaml:"steps"`
}

// StepDescription describes one step of a stage.
type StepDescription struct {
	Name           string     `json:"name" yaml:"name"`
	Active         *bool      `json:"active,omitempty" yaml:"active,omitempty"`
	BatchArgs      []Argument `json:"batch_args" yaml:"batch_args"`
	SubmissionArgs []Argument `json:"submission_args" yaml:"submission_args"`
	ExtraArgs      []Argument `json:"extra_args,omitempty" yaml:"extra_args,omitempty"`
}

// Validate checks structural soundness of a description: a non-empty type,
// at least one stage, unique non-reserved stage names, and a known mode.
func (d *WorkflowDescription) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("workflow type is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow has no stages")
	}
	seen := make(map[string]bool, len(d.Stages))
	for i, st := range d.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d: name is required", i)
		}
		if st.Name == UploadStageName {
			return fmt.Errorf("stage %d: %q is reserved", i, UploadStageName)
		}
		if seen[st.Name] {
			return fmt.Errorf("stage %d: duplicate name %q", i, st.Name)
		}
		seen[st.Name] = true
		switch st.Mode {
		case StageModeSequential, StageModeParallel:
		default:
			return fmt.Errorf("stage %q: unknown mode %q", st.Name, st.Mode)
		}
		for j, sp := range st.Steps {
			if sp.Name == "" {
				return fmt.Errorf("stage %q: step %d: name is required", st.Name, j)
			}
		}
	}
	return nil
}

func activeOrDefault(p *bool) bool {
	return p == nil || *p
}

// NewWorkflow builds the runtime tree from a description: the reserved
// upload stage is prepended at index 0 and argument defaults are applied.
func NewWorkflow(id string, desc *WorkflowDescription) *Workflow {
	now := time.Now().UTC()
	w := &Workflow{
		ID:        id,
		Type:      desc.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.Stages = make([]Stage, 0, len(desc.Stages)+1)
	w.Stages = append(w.Stages, Stage{
		Name:   UploadStageName,
		Mode:   StageModeSequential,
		Active: true,
	})

	for _, sd := range desc.Stages {
		stage := Stage{
			Name:   sd.Name,
			Mode:   sd.Mode,
			Active: activeOrDefault(sd.Active),
		}
		for _, spd := range sd.Steps {
			step := Step{
				Name:           spd.Name,
				Active:         activeOrDefault(spd.Active),
				BatchArgs:      cloneArgs(spd.BatchArgs),
				SubmissionArgs: cloneArgs(spd.SubmissionArgs),
				ExtraArgs:      cloneArgs(spd.ExtraArgs),
			}
			for i := range step.BatchArgs {
				step.BatchArgs[i].ApplyDefault()
			}
			for i := range step.SubmissionArgs {
				step.SubmissionArgs[i].ApplyDefault()
			}
			for i := range step.ExtraArgs {
				step.ExtraArgs[i].ApplyDefault()
			}
			stage.Steps = append(stage.Steps, step)
		}
		w.Stages = append(w.Stages, stage)
	}

	return w
}

// Description returns the persistable form of the workflow: every stage
// except the prepended upload stage, with explicit active flags and current
// argument values, but no status or jobs.
func (w *Workflow) Description() *WorkflowDescription {
	desc := &WorkflowDescription{Type: w.Type}
	for i := 1; i < len(w.Stages); i++ {
		stage := &w.Stages[i]
		active := stage.Active
		sd := StageDescription{
			Name:   stage.Name,
			Mode:   stage.Mode,
			Active: &active,
		}
		for j := range stage.Steps {
			step := &stage.Steps[j]
			stepActive := step.Active
			sd.Steps = append(sd.Steps, StepDescription{
				Name:           step.Name,
				Active:         &stepActive,
				BatchArgs:      cloneArgs(step.BatchArgs),
				SubmissionArgs: cloneArgs(step.SubmissionArgs),
				ExtraArgs:      cloneArgs(step.ExtraArgs),
			})
		}
		desc.Stages = append(desc.Stages, sd)
	}
	return desc
}

// Unsatisfied collects every required-but-empty argument of every active
// step in processing stages 1..index. The upload stage is validated by
// upload-completion state, not by arguments.
func (w *Workflow) Unsatisfied(index int) []ArgumentRef {
	var refs []ArgumentRef
	for i := 1; i <= index && i < len(w.Stages); i++ {
		stage := &w.Stages[i]
		for j := range stage.Steps {
			step := &stage.Steps[j]
			if !step.Active {
				continue
			}
			refs = append(refs, step.Unsatisfied(stage.Name)...)
		}
	}
	return refs
}

// IsSubmittable reports whether every active step up to and including the
// target stage index has all required arguments satisfied.
func (w *Workflow) IsSubmittable(index int) bool {
	if index < 1 || index >= len(w.Stages) {
		return false
	}
	return len(w.Unsatisfied(index)) == 0
}

// MarkActiveUpTo activates processing stages 1..index and deactivates the
// stages beyond. Deactivated stages are retained in the description, never
// dropped, so their parameter values survive for a later resubmission.
func (w *Workflow) MarkActiveUpTo(index int) {
	for i := 1; i < len(w.Stages); i++ {
		w.Stages[i].Active = i <= index
	}
	w.UpdatedAt = time.Now().UTC()
}

// AggregateStages recomputes the workflow-level status from its active
// stages, including the locally computed upload stage.
func (w *Workflow) AggregateStages() Status {
	var children []Status
	for i := range w.Stages {
		if w.Stages[i].Active {
			children = append(children, w.Stages[i].Status)
		}
	}
	return Aggregate(children)
}

// Clone returns a deep copy of the workflow tree, safe to hand to a caller
// while the original remains subject to reconciliation writes.
func (w *Workflow) Clone() *Workflow {
	out := *w
	out.Stages = make([]Stage, len(w.Stages))
	for i := range w.Stages {
		src := &w.Stages[i]
		dst := *src
		dst.Steps = make([]Step, len(src.Steps))
		for j := range src.Steps {
			sp := src.Steps[j]
			sp.BatchArgs = cloneArgs(sp.BatchArgs)
			sp.SubmissionArgs = cloneArgs(sp.SubmissionArgs)
			sp.ExtraArgs = cloneArgs(sp.ExtraArgs)
			sp.Jobs = append([]Job(nil), sp.Jobs...)
			dst.Steps[j] = sp
		}
		out.Stages[i] = dst
	}
	return &out
}

func cloneArgs(args []Argument) []Argument {
	if args == nil {
		return nil
	}
	out := make([]Argument, len(args))
	for i, a := range args {
		a.Choices = append([]string(nil), a.Choices...)
		out[i] = a
	}
	return out
}
