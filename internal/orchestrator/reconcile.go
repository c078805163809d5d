package orchestrator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/me/tessera/internal/batch"
	"github.com/me/tessera/pkg/model"
)

// Refresh performs one reconciliation pass: fetch the backend snapshot for
// the current submission, then rewrite the tree's status fields in place.
// The upload stage is always refreshed from the local tracker, snapshot or
// not.
//
// The snapshot is positional. Its stage-level subtasks map one-to-one onto
// the processing stages of the description in order; names are never used
// to correlate. A snapshot with fewer stage entries than the description
// leaves the trailing stages untouched. A snapshot with more entries than
// the description can absorb is an inconsistency and is rejected whole.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	backendID := o.backendID
	o.mu.Unlock()

	var snap *batch.TaskNode
	if backendID != "" {
		var err error
		snap, err = o.backend.QueryStatus(ctx, backendID)
		if err != nil {
			// Keep the previous tree; the caller decides whether the
			// staleness matters.
			return classifyBackendErr("query status", err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.wf.Stages[0].Status = o.uploads.Summary()

	if snap == nil {
		return nil
	}
	// A resubmission may have replaced the submission while the fetch was in
	// flight. A snapshot for the old one must not overwrite the new state.
	if o.backendID != backendID {
		o.logger.Debug("discarding snapshot for superseded submission", "backend_id", backendID)
		return nil
	}
	if err := validateSnapshot(snap, o.wf); err != nil {
		o.logger.Warn("snapshot rejected", "error", err)
		return err
	}
	o.applySnapshotLocked(snap)
	return nil
}

// validateSnapshot checks the positional shape before anything is written,
// so a malformed snapshot never leaves the tree half-updated.
func validateSnapshot(snap *batch.TaskNode, wf *model.Workflow) error {
	stages := wf.Stages[1:]
	if len(snap.Subtasks) > len(stages) {
		return fmt.Errorf("snapshot reports %d stages, description has %d", len(snap.Subtasks), len(stages))
	}
	for i := range snap.Subtasks {
		if n, max := len(snap.Subtasks[i].Subtasks), len(stages[i].Steps); n > max {
			return fmt.Errorf("snapshot stage %d reports %d steps, description has %d", i+1, n, max)
		}
	}
	return nil
}

func (o *Orchestrator) applySnapshotLocked(snap *batch.TaskNode) {
	o.wf.Status = snap.Status()

	stages := o.wf.Stages[1:]
	for i := range snap.Subtasks {
		stageNode := &snap.Subtasks[i]
		stage := &stages[i]
		stage.Status = stageNode.Status()

		for j := range stageNode.Subtasks {
			stepNode := &stageNode.Subtasks[j]
			step := &stage.Steps[j]
			step.Status = stepNode.Status()
			// Jobs are rebuilt wholesale on every pass. The backend may
			// split or renumber them between polls, so stale Job structs
			// are never patched in place.
			step.Jobs = flattenJobs(stepNode)
		}
	}
}

// flattenJobs collects the leaf tasks under a step node into a flat job
// list. Intermediate nodes tagged "run" or "collect" set the phase of every
// leaf beneath them; an untagged subtree inherits the phase of its nearest
// tagged ancestor, defaulting to the run phase.
func flattenJobs(step *batch.TaskNode) []model.Job {
	var jobs []model.Job

	var walk func(n *batch.TaskNode, phase model.JobPhase)
	walk = func(n *batch.TaskNode, phase model.JobPhase) {
		switch n.Type {
		case batch.TaskTypeRun:
			phase = model.JobPhaseRun
		case batch.TaskTypeCollect:
			phase = model.JobPhaseCollect
		}
		if n.IsLeaf() {
			// A phase container with no children yet is not a job.
			if n.Type == batch.TaskTypeRun || n.Type == batch.TaskTypeCollect {
				return
			}
			jobs = append(jobs, model.Job{
				ID:       jobIDFromName(n.Name, len(jobs)+1),
				SourceID: n.ID,
				Phase:    phase,
				Status:   n.Status(),
				ExitCode: n.ExitCode,
				CPUTime:  n.CPUTime,
				WallTime: n.WallTime,
				Memory:   n.Memory,
			})
			return
		}
		for i := range n.Subtasks {
			walk(&n.Subtasks[i], phase)
		}
	}

	for i := range step.Subtasks {
		walk(&step.Subtasks[i], model.JobPhaseRun)
	}
	return jobs
}

// jobIDFromName derives a stable numeric job id from the trailing digits of
// the task name ("run_jterator_000042" -> 42). Names without a numeric
// suffix fall back to the 1-based position in the flattened list.
func jobIDFromName(name string, fallback int) int {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return fallback
	}
	id, err := strconv.Atoi(name[i:])
	if err != nil {
		return fallback
	}
	return id
}
