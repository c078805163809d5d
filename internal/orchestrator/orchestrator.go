package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/tessera/internal/batch"
	"github.com/me/tessera/internal/store"
	"github.com/me/tessera/internal/upload"
	"github.com/me/tessera/pkg/model"
)

// Backend is the contract this engine needs from the batch-execution
// service. batch.Service implements it; tests substitute fakes.
type Backend interface {
	SubmitWorkflow(ctx context.Context, desc *model.WorkflowDescription, resumeFrom *int) (string, error)
	QueryStatus(ctx context.Context, backendID string) (*batch.TaskNode, error)
	KillWorkflow(ctx context.Context, backendID string) error
	QueryJobLog(ctx context.Context, sourceID string) (string, error)
}

// Orchestrator drives one workflow: submission, resubmission from an
// arbitrary stage, cancellation, persistence of the description, and
// reconciliation of the local tree against backend-reported progress.
//
// The in-memory workflow tree is the single shared mutable resource between
// description edits and reconciliation; a single mutex keeps every write
// whole, so a reader never observes a half-updated tree.
type Orchestrator struct {
	mu        sync.Mutex
	wf        *model.Workflow
	backendID string

	backend Backend
	store   store.Store
	uploads *upload.Tracker
	logger  *slog.Logger
}

// New creates an Orchestrator for an already-built workflow tree. All
// collaborators are injected; there is no ambient lookup.
func New(wf *model.Workflow, backend Backend, st store.Store, uploads *upload.Tracker, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		wf:      wf,
		backend: backend,
		store:   st,
		uploads: uploads,
		logger:  logger.With("component", "orchestrator", "workflow_id", wf.ID),
	}
}

// ID returns the workflow identity.
func (o *Orchestrator) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wf.ID
}

// BackendID returns the backend-assigned identity of the most recent
// submission, or "" if the workflow has never been submitted.
func (o *Orchestrator) BackendID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backendID
}

// Uploads returns the upload tracker feeding the reserved upload stage.
func (o *Orchestrator) Uploads() *upload.Tracker {
	return o.uploads
}

// Snapshot returns a deep copy of the current tree without triggering a
// reconciliation pass.
func (o *Orchestrator) Snapshot() *model.Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.wf.Stages[0].Status = o.uploads.Summary()
	return o.wf.Clone()
}

// IsSubmittable reports whether every active step up to and including the
// target stage index has its required arguments satisfied.
func (o *Orchestrator) IsSubmittable(index int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wf.IsSubmittable(index)
}

// CanResubmit reports whether the root state permits a (re)submission:
// never submitted, or terminal. Transient and in-flight states do not.
func (o *Orchestrator) CanResubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eligibleLocked()
}

func (o *Orchestrator) eligibleLocked() bool {
	state := o.wf.Status.State
	return state == model.StateUnsubmitted || state.IsTerminal()
}

// Submit builds a description containing every processing stage, with
// stages up to and including index active and the rest inactive but
// retained, persists it, and forwards it to the backend.
//
// Engine-level failures (validation, state conflict) are resolved locally
// and never reach the backend.
func (o *Orchestrator) Submit(ctx context.Context, index int) error {
	return o.submit(ctx, index, nil)
}

// Resubmit is Submit plus a resume marker telling the backend to skip
// re-executing stages strictly before fromStageIndex. Parameter values of
// previously inactive stages are reused, never re-entered.
func (o *Orchestrator) Resubmit(ctx context.Context, index, fromStageIndex int) error {
	if fromStageIndex < 1 || fromStageIndex > index {
		return fmt.Errorf("resume index %d out of range [1, %d]", fromStageIndex, index)
	}
	return o.submit(ctx, index, &fromStageIndex)
}

func (o *Orchestrator) submit(ctx context.Context, index int, resumeFrom *int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := "submit"
	if resumeFrom != nil {
		op = "resubmit"
	}

	if index < 1 || index >= len(o.wf.Stages) {
		return fmt.Errorf("stage index %d out of range [1, %d]", index, len(o.wf.Stages)-1)
	}
	if !o.eligibleLocked() {
		return &model.StateConflictError{Op: op, State: o.wf.Status.State}
	}
	if refs := o.wf.Unsatisfied(index); len(refs) > 0 {
		return &model.ValidationError{Unsatisfied: refs}
	}

	o.wf.MarkActiveUpTo(index)
	desc := o.wf.Description()

	// Persist before forwarding so a process restart cannot lose edits.
	if err := o.store.SaveDescription(ctx, o.wf.ID, desc); err != nil {
		return fmt.Errorf("save description: %w", err)
	}

	backendID, err := o.backend.SubmitWorkflow(ctx, desc, resumeFrom)
	if err != nil {
		return classifyBackendErr(op, err)
	}
	o.backendID = backendID
	o.wf.Status = model.Status{State: model.StateSubmitted}

	rec := &model.SubmissionRecord{
		ID:         "sub_" + uuid.New().String(),
		WorkflowID: o.wf.ID,
		BackendID:  backendID,
		Index:      index,
		ResumeFrom: resumeFrom,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.RecordSubmission(ctx, rec); err != nil {
		// The submission is already running; history is best-effort.
		o.logger.Error("record submission", "error", err)
	}

	o.logger.Info("workflow submitted",
		"backend_id", backendID,
		"index", index,
		"resume_from", resumeFrom,
	)
	return nil
}

// Kill requests cancellation of the whole workflow. Fire-and-forget: the
// call does not await backend confirmation, and the next poll observes the
// TERMINATING transition. There is no partial-stage cancellation.
func (o *Orchestrator) Kill(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.backendID == "" {
		return &model.StateConflictError{Op: "kill", State: o.wf.Status.State}
	}
	if err := o.backend.KillWorkflow(ctx, o.backendID); err != nil {
		return classifyBackendErr("kill", err)
	}
	o.logger.Info("kill requested", "backend_id", o.backendID)
	return nil
}

// Save persists the current description verbatim.
func (o *Orchestrator) Save(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.SaveDescription(ctx, o.wf.ID, o.wf.Description())
}

// Load rebuilds the tree from the last-saved description and restores the
// backend identity of the most recent submission. Status is discarded; the
// next reconciliation pass refills it.
func (o *Orchestrator) Load(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	desc, err := o.store.LoadDescription(ctx, o.wf.ID)
	if err != nil {
		return fmt.Errorf("load description: %w", err)
	}
	if desc == nil {
		return fmt.Errorf("no saved description for workflow %s", o.wf.ID)
	}

	recs, err := o.store.ListSubmissions(ctx, o.wf.ID)
	if err != nil {
		return fmt.Errorf("load submission history: %w", err)
	}

	o.wf = model.NewWorkflow(o.wf.ID, desc)
	o.backendID = ""
	if len(recs) > 0 {
		o.backendID = recs[len(recs)-1].BackendID
		o.wf.Status = model.Status{State: model.StateSubmitted}
	}
	o.logger.Info("description loaded", "backend_id", o.backendID)
	return nil
}

// SetArgumentValue edits one argument of the description. Edits share the
// tree mutex with reconciliation, so a write is never interleaved with a
// poll being applied.
func (o *Orchestrator) SetArgumentValue(stageName, stepName, set, argName, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := 1; i < len(o.wf.Stages); i++ {
		stage := &o.wf.Stages[i]
		if stage.Name != stageName {
			continue
		}
		for j := range stage.Steps {
			step := &stage.Steps[j]
			if step.Name != stepName {
				continue
			}
			var args []model.Argument
			switch set {
			case model.ArgSetBatch:
				args = step.BatchArgs
			case model.ArgSetSubmission:
				args = step.SubmissionArgs
			case model.ArgSetExtra:
				args = step.ExtraArgs
			default:
				return fmt.Errorf("unknown argument set %q", set)
			}
			for k := range args {
				if args[k].Name == argName {
					args[k].Value = value
					o.wf.UpdatedAt = time.Now().UTC()
					return nil
				}
			}
			return fmt.Errorf("argument %q not found in %s/%s/%s", argName, stageName, stepName, set)
		}
		return fmt.Errorf("step %q not found in stage %q", stepName, stageName)
	}
	return fmt.Errorf("stage %q not found", stageName)
}

// GetStatus triggers one reconciliation pass and returns a deep copy of the
// updated tree. A fetch failure leaves the tree untouched and is returned
// as a transient error alongside the previous tree, so a caller's progress
// display never flashes to zero on a blip.
func (o *Orchestrator) GetStatus(ctx context.Context) (*model.Workflow, error) {
	err := o.Refresh(ctx)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wf.Clone(), err
}

// JobLog fetches the raw output text for a job by its backend source id.
func (o *Orchestrator) JobLog(ctx context.Context, sourceID string) (string, error) {
	text, err := o.backend.QueryJobLog(ctx, sourceID)
	if err != nil {
		return "", classifyBackendErr("job log", err)
	}
	return text, nil
}

// classifyBackendErr sorts backend failures into the error taxonomy: an
// explicit RPC-level refusal is a rejection, anything else (network,
// timeout, malformed response) is transient. Neither is retried here.
func classifyBackendErr(op string, err error) error {
	var rpcErr *batch.RPCError
	if errors.As(err, &rpcErr) {
		return &model.BackendRejectionError{Op: op, Code: rpcErr.Code, Message: rpcErr.Message}
	}
	return &model.TransientBackendError{Op: op, Err: err}
}
