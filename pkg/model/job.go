package model

// JobPhase classifies a job within its step: primary execution or
// result collection.
type JobPhase string

const (
	JobPhaseRun     JobPhase = "run"
	JobPhaseCollect JobPhase = "collect"
)

// Job is the smallest unit of observable progress: one externally executed
// task. Jobs are created only when the orchestrator observes them in a
// status snapshot; the batch size determines the job count, so jobs are
// not known ahead of submission. Identity is immutable once observed; the
// status is replaced wholesale on each reconciliation.
type Job struct {
	// ID is derived deterministically from the numeric suffix of the
	// backend-reported job name.
	ID int `json:"id"`

	// SourceID is the backend-assigned stable identity used for log and
	// status lookups.
	SourceID string `json:"source_id"`

	Phase  JobPhase `json:"phase"`
	Status Status   `json:"status"`

	// Resource accounting mirrored from the backend's leaf task record.
	ExitCode *int    `json:"exit_code,omitempty"`
	CPUTime  float64 `json:"cpu_time,omitempty"`  // seconds
	WallTime float64 `json:"wall_time,omitempty"` // seconds
	Memory   int64   `json:"memory,omitempty"`    // bytes
}
