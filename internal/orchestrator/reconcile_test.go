package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/me/tessera/internal/batch"
	"github.com/me/tessera/internal/logging"
	"github.com/me/tessera/internal/upload"
	"github.com/me/tessera/pkg/model"
)

// gatedBackend blocks every status query until the test releases it, so a
// poll can be held in flight across other operations.
type gatedBackend struct {
	fakeBackend
	entered chan struct{}
	proceed chan struct{}
}

func (g *gatedBackend) QueryStatus(ctx context.Context, backendID string) (*batch.TaskNode, error) {
	g.entered <- struct{}{}
	<-g.proceed
	return g.fakeBackend.QueryStatus(ctx, backendID)
}

// testSnapshot mirrors the canonical plan mid-run: convert finished,
// preprocess halfway, analyze not reported yet.
func testSnapshot() *batch.TaskNode {
	exit0 := 0
	return &batch.TaskNode{
		ID: "bk-100", Name: "wf", State: "RUNNING", PercentDone: 33.3,
		Subtasks: []batch.TaskNode{
			{
				ID: "t-1", Name: "convert", State: "TERMINATED", Done: true, PercentDone: 100,
				Subtasks: []batch.TaskNode{
					{
						ID: "t-1-1", Name: "metaextract", State: "TERMINATED", Done: true, PercentDone: 100,
						Subtasks: []batch.TaskNode{
							{
								ID: "p-1", Name: "run_metaextract", Type: batch.TaskTypeRun,
								State: "TERMINATED", Done: true, PercentDone: 100,
								Subtasks: []batch.TaskNode{
									{ID: "j-1", Name: "run_metaextract_000001", State: "TERMINATED", Done: true, PercentDone: 100, ExitCode: &exit0, CPUTime: 12.5, WallTime: 14.0, Memory: 2048},
									{ID: "j-2", Name: "run_metaextract_000002", State: "TERMINATED", Done: true, PercentDone: 100, ExitCode: &exit0},
								},
							},
							{
								ID: "p-2", Name: "collect_metaextract", Type: batch.TaskTypeCollect,
								State: "TERMINATED", Done: true, PercentDone: 100,
								Subtasks: []batch.TaskNode{
									{ID: "j-3", Name: "collect_metaextract_000001", State: "TERMINATED", Done: true, PercentDone: 100, ExitCode: &exit0},
								},
							},
						},
					},
					{ID: "t-1-2", Name: "imextract", State: "TERMINATED", Done: true, PercentDone: 100},
				},
			},
			{
				ID: "t-2", Name: "preprocess", State: "RUNNING", PercentDone: 50,
				Subtasks: []batch.TaskNode{
					{
						ID: "t-2-1", Name: "corilla", State: "RUNNING", PercentDone: 50,
						Subtasks: []batch.TaskNode{
							{
								ID: "p-3", Name: "run_corilla", Type: batch.TaskTypeRun, State: "RUNNING", PercentDone: 50,
								Subtasks: []batch.TaskNode{
									{ID: "j-4", Name: "run_corilla_000001", State: "RUNNING", PercentDone: 50},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestRefresh_PositionalMapping(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()

	if err := orc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	wf := orc.Snapshot()

	if wf.Status.State != model.StateRunning || wf.Status.PercentDone != 33.3 {
		t.Errorf("root = %+v, want RUNNING 33.3", wf.Status)
	}

	// Snapshot subtask i maps onto processing stage i+1, by position.
	convert := wf.Stages[1]
	if convert.Status.State != model.StateTerminated || !convert.Status.Done {
		t.Errorf("convert = %+v, want TERMINATED done", convert.Status)
	}
	if convert.Steps[0].Status.State != model.StateTerminated {
		t.Errorf("metaextract = %+v", convert.Steps[0].Status)
	}

	preprocess := wf.Stages[2]
	if preprocess.Status.State != model.StateRunning || preprocess.Status.PercentDone != 50 {
		t.Errorf("preprocess = %+v, want RUNNING 50", preprocess.Status)
	}

	// The snapshot carries two stage entries; the third stage is untouched.
	analyze := wf.Stages[3]
	if analyze.Status.State != model.StateUnsubmitted {
		t.Errorf("analyze = %+v, want untouched", analyze.Status)
	}
}

func TestRefresh_JobsRebuiltFromLeaves(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()
	if err := orc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	jobs := orc.Snapshot().Stages[1].Steps[0].Jobs
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(jobs))
	}
	if jobs[0].ID != 1 || jobs[0].Phase != model.JobPhaseRun || jobs[0].SourceID != "j-1" {
		t.Errorf("job[0] = %+v", jobs[0])
	}
	if jobs[0].CPUTime != 12.5 || jobs[0].Memory != 2048 {
		t.Errorf("job[0] accounting = %+v", jobs[0])
	}
	if jobs[2].Phase != model.JobPhaseCollect || jobs[2].ID != 1 {
		t.Errorf("job[2] = %+v, want collect phase id 1", jobs[2])
	}

	// A later snapshot with fewer jobs replaces the list wholesale.
	backend.snapshot.Subtasks[0].Subtasks[0].Subtasks[0].Subtasks = backend.snapshot.Subtasks[0].Subtasks[0].Subtasks[0].Subtasks[:1]
	if err := orc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh (second): %v", err)
	}
	jobs = orc.Snapshot().Stages[1].Steps[0].Jobs
	if len(jobs) != 2 {
		t.Errorf("jobs after shrink = %d, want 2", len(jobs))
	}
}

func TestRefresh_SnapshotWiderThanDescription(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 3); err == nil {
		t.Fatal("Submit(3) should fail validation first")
	}
	if err := orc.SetArgumentValue("analyze", "jterator", model.ArgSetBatch, "batch_size", "1"); err != nil {
		t.Fatalf("SetArgumentValue: %v", err)
	}
	if err := orc.Submit(ctx, 3); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := testSnapshot()
	snap.Subtasks = append(snap.Subtasks, batch.TaskNode{Name: "x"}, batch.TaskNode{Name: "y"})
	backend.snapshot = snap

	before := orc.Snapshot()
	if err := orc.Refresh(ctx); err == nil {
		t.Fatal("Refresh should reject a snapshot wider than the description")
	}
	after := orc.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Error("rejected snapshot must leave the tree untouched")
	}
}

func TestRefresh_SnapshotStepMismatch(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := testSnapshot()
	// preprocess has one step; report two.
	snap.Subtasks[1].Subtasks = append(snap.Subtasks[1].Subtasks, batch.TaskNode{Name: "phantom"})
	backend.snapshot = snap

	if err := orc.Refresh(ctx); err == nil {
		t.Fatal("Refresh should reject a stage with more step entries than declared")
	}
}

func TestRefresh_FetchFailureKeepsTree(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()
	if err := orc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	before := orc.Snapshot()

	backend.statusErr = errors.New("connection reset")
	wf, err := orc.GetStatus(ctx)
	var terr *model.TransientBackendError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransientBackendError", err)
	}
	if !reflect.DeepEqual(before, wf) {
		t.Error("fetch failure must return the previous tree unchanged")
	}
}

func TestRefresh_StaleSnapshotAfterResubmit(t *testing.T) {
	backend := &gatedBackend{
		fakeBackend: fakeBackend{submitID: "bk-A"},
		entered:     make(chan struct{}),
		proceed:     make(chan struct{}),
	}
	st := newFakeStore()
	orc := New(model.NewWorkflow("wf-1", testDescription()), backend, st, upload.NewTracker(), logging.Discard())
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = &batch.TaskNode{ID: "bk-A", Name: "wf", State: "TERMINATED", Done: true, PercentDone: 100}

	// First pass drives the tree to a terminal state.
	refreshed := make(chan error, 1)
	go func() { refreshed <- orc.Refresh(ctx) }()
	<-backend.entered
	backend.proceed <- struct{}{}
	if err := <-refreshed; err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := orc.Snapshot().Status.State; got != model.StateTerminated {
		t.Fatalf("state = %s, want TERMINATED", got)
	}

	// Hold the next poll in flight while a resubmission replaces the
	// submission it was issued for.
	go func() { refreshed <- orc.Refresh(ctx) }()
	<-backend.entered

	backend.submitID = "bk-B"
	if err := orc.Resubmit(ctx, 2, 1); err != nil {
		t.Fatalf("Resubmit: %v", err)
	}

	backend.proceed <- struct{}{}
	if err := <-refreshed; err != nil {
		t.Fatalf("Refresh (superseded): %v", err)
	}

	// The terminal snapshot belonged to bk-A and must not overwrite the new
	// submission's state.
	if got := orc.Snapshot().Status.State; got != model.StateSubmitted {
		t.Errorf("state = %s, want SUBMITTED", got)
	}
	if orc.CanResubmit() {
		t.Error("workflow must not be resubmittable while bk-B is in flight")
	}
	if orc.BackendID() != "bk-B" {
		t.Errorf("backend id = %q, want bk-B", orc.BackendID())
	}
}

func TestRefresh_FailurePropagation(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// One failed job inside an otherwise terminated step.
	exit0, exit1 := 0, 1
	backend.snapshot = &batch.TaskNode{
		ID: "bk-100", Name: "wf", State: "TERMINATED", Failed: true, PercentDone: 100,
		Subtasks: []batch.TaskNode{
			{
				Name: "convert", State: "TERMINATED", Failed: true, PercentDone: 100,
				Subtasks: []batch.TaskNode{
					{
						Name: "metaextract", State: "TERMINATED", Failed: true, PercentDone: 100,
						Subtasks: []batch.TaskNode{
							{
								Name: "run_metaextract", Type: batch.TaskTypeRun,
								State: "TERMINATED", Failed: true, PercentDone: 100,
								Subtasks: []batch.TaskNode{
									{ID: "j-1", Name: "run_metaextract_000001", State: "TERMINATED", Done: true, PercentDone: 100, ExitCode: &exit0},
									{ID: "j-2", Name: "run_metaextract_000002", State: "TERMINATED", Failed: true, PercentDone: 100, ExitCode: &exit1},
								},
							},
						},
					},
					{Name: "imextract", State: "TERMINATED", Done: true, PercentDone: 100},
				},
			},
		},
	}
	if err := orc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	wf := orc.Snapshot()

	step := wf.Stages[1].Steps[0]
	if step.Status.State != model.StateTerminated || !step.Status.Failed {
		t.Errorf("step = %+v, want TERMINATED failed", step.Status)
	}
	if len(step.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(step.Jobs))
	}
	if step.Jobs[0].Status.Failed {
		t.Errorf("job[0] = %+v, want not failed", step.Jobs[0].Status)
	}
	if !step.Jobs[1].Status.Failed || *step.Jobs[1].ExitCode != 1 {
		t.Errorf("job[1] = %+v exit %v, want failed exit 1", step.Jobs[1].Status, step.Jobs[1].ExitCode)
	}

	if !wf.Stages[1].Status.Failed {
		t.Error("failure must propagate to the stage")
	}
	if !wf.Status.Failed || wf.Status.State != model.StateTerminated {
		t.Errorf("root = %+v, want TERMINATED failed", wf.Status)
	}

	// A failed terminal workflow stays observable and resubmittable.
	if !orc.CanResubmit() {
		t.Error("failed terminal workflow should be resubmittable")
	}
}

func TestGetStatus_Idempotent(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()

	first, err := orc.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	second, err := orc.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus (second): %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated status queries against an unchanged backend must be identical")
	}
	if backend.statusCalls != 2 {
		t.Errorf("status calls = %d, want 2", backend.statusCalls)
	}
}

func TestGetStatus_ReturnsDeepCopy(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()

	got, err := orc.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	got.Stages[1].Steps[0].Jobs[0].ID = 999
	got.Stages[1].Status.State = model.StateUnknown

	fresh := orc.Snapshot()
	if fresh.Stages[1].Steps[0].Jobs[0].ID == 999 {
		t.Error("mutating the returned tree must not affect the engine's copy")
	}
	if fresh.Stages[1].Status.State == model.StateUnknown {
		t.Error("mutating the returned tree must not affect the engine's copy")
	}
}

func TestRefresh_NotSubmitted(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)

	if err := orc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if backend.statusCalls != 0 {
		t.Error("no backend query before the first submission")
	}
	// The upload stage is still locally reconciled: no registered units
	// means a fresh NEW stage.
	up := orc.Snapshot().Stages[0].Status
	if up.State != model.StateNew || up.PercentDone != 0 {
		t.Errorf("upload = %+v, want NEW 0", up)
	}
}

func TestRefresh_UploadStageFromTracker(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	tracker := orc.Uploads()
	tracker.Register("a.png")
	tracker.Register("b.png")
	if err := tracker.SetState("a.png", upload.UnitComplete); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := tracker.SetState("b.png", upload.UnitUploading); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()
	if err := orc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	up := orc.Snapshot().Stages[0].Status
	if up.State != model.StateRunning || up.PercentDone != 50 {
		t.Errorf("upload = %+v, want RUNNING 50", up)
	}
}

func TestFlattenJobs_PhaseInheritance(t *testing.T) {
	step := &batch.TaskNode{
		Name: "step",
		Subtasks: []batch.TaskNode{
			{
				Name: "collect_wrap", Type: batch.TaskTypeCollect,
				Subtasks: []batch.TaskNode{
					// Untagged wrapper inherits the collect phase.
					{Name: "inner", Subtasks: []batch.TaskNode{
						{ID: "j-9", Name: "part_009", State: "RUNNING"},
					}},
				},
			},
			// Untagged leaf directly under the step defaults to run.
			{ID: "j-5", Name: "loose_005", State: "NEW"},
			// Empty phase container is not a job.
			{Name: "run_empty", Type: batch.TaskTypeRun},
		},
	}

	jobs := flattenJobs(step)
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Phase != model.JobPhaseCollect || jobs[0].ID != 9 {
		t.Errorf("job[0] = %+v, want collect id 9", jobs[0])
	}
	if jobs[1].Phase != model.JobPhaseRun || jobs[1].ID != 5 {
		t.Errorf("job[1] = %+v, want run id 5", jobs[1])
	}
}

func TestJobIDFromName(t *testing.T) {
	cases := []struct {
		name     string
		fallback int
		want     int
	}{
		{"run_jterator_000042", 1, 42},
		{"collect_metaextract_000001", 7, 1},
		{"task9", 3, 9},
		{"no-digits", 5, 5},
		{"", 2, 2},
	}
	for _, tc := range cases {
		if got := jobIDFromName(tc.name, tc.fallback); got != tc.want {
			t.Errorf("jobIDFromName(%q, %d) = %d, want %d", tc.name, tc.fallback, got, tc.want)
		}
	}
}
