package model

// State represents the lifecycle state of a workflow, stage, step, or job.
//
// The canonical lifecycle is:
//
//	"" (not yet submitted) → NEW → SUBMITTED → RUNNING →
//	{TERMINATED, STOPPED, TERMINATING, STOPPING, UNKNOWN}
//
// TERMINATED and STOPPED are terminal and resubmittable. TERMINATING and
// STOPPING are transient: a resubmission attempted in either is rejected.
type State string

const (
	StateUnsubmitted State = ""
	StateNew         State = "NEW"
	StateSubmitted   State = "SUBMITTED"
	StateRunning     State = "RUNNING"
	StateTerminating State = "TERMINATING"
	StateStopping    State = "STOPPING"
	StateTerminated  State = "TERMINATED"
	StateStopped     State = "STOPPED"
	StateUnknown     State = "UNKNOWN"
)

// String returns the string representation of the state.
// The empty (not yet submitted) state renders as "UNSUBMITTED".
func (s State) String() string {
	if s == StateUnsubmitted {
		return "UNSUBMITTED"
	}
	return string(s)
}

// IsTerminal returns true if the state is final.
// Both terminal states are eligible for resubmission.
func (s State) IsTerminal() bool {
	return s == StateTerminated || s == StateStopped
}

// IsTransient returns true if the state is between RUNNING and a terminal
// state. Transient states are never eligible for submission or resubmission.
func (s State) IsTransient() bool {
	return s == StateTerminating || s == StateStopping
}

// InFlight returns true if the backend may still be working on the
// collection: submitted but not yet terminal.
func (s State) InFlight() bool {
	switch s {
	case StateNew, StateSubmitted, StateRunning, StateTerminating, StateStopping:
		return true
	}
	return false
}

// ParseState converts a backend-reported state string to a State.
// Unrecognized values map to UNKNOWN rather than propagating untyped data.
func ParseState(s string) State {
	switch State(s) {
	case StateUnsubmitted, StateNew, StateSubmitted, StateRunning,
		StateTerminating, StateStopping, StateTerminated, StateStopped,
		StateUnknown:
		return State(s)
	}
	return StateUnknown
}
