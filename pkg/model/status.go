package model

// Status is the aggregate status attached to a workflow, stage, step, or job.
//
// Invariants: Done implies State == TERMINATED. PercentDone == 100 does not
// by itself imply Done; a job can be at 100% and still failed or
// terminating.
type Status struct {
	State       State   `json:"state"`
	Done        bool    `json:"done"`
	Failed      bool    `json:"failed"`
	PercentDone float64 `json:"percent_done"`
}

// Aggregate derives a parent Status from its active children.
//
// The parent is RUNNING if any child is RUNNING or SUBMITTED, and TERMINATED
// only if all children are TERMINATED. Failed is the logical OR of the
// children. PercentDone is the arithmetic mean, with children not yet
// reached contributing 0 so the value stays monotonic across a run.
func Aggregate(children []Status) Status {
	if len(children) == 0 {
		return Status{}
	}

	var (
		sum            float64
		failed         bool
		anyRunning     bool
		anyTerminating bool
		anyStopping    bool
		anyNew         bool
		anyUnknown     bool
		anyStopped     bool
		allTerminated  = true
		allTerminal    = true
		allDone        = true
	)

	for _, c := range children {
		sum += c.PercentDone
		failed = failed || c.Failed
		allDone = allDone && c.Done

		switch c.State {
		case StateRunning, StateSubmitted:
			anyRunning = true
		case StateTerminating:
			anyTerminating = true
		case StateStopping:
			anyStopping = true
		case StateNew:
			anyNew = true
		case StateUnknown:
			anyUnknown = true
		case StateStopped:
			anyStopped = true
		}

		if c.State != StateTerminated {
			allTerminated = false
		}
		if !c.State.IsTerminal() {
			allTerminal = false
		}
	}

	agg := Status{
		Failed:      failed,
		PercentDone: sum / float64(len(children)),
	}

	switch {
	case anyStopping:
		agg.State = StateStopping
	case anyTerminating:
		agg.State = StateTerminating
	case anyRunning:
		agg.State = StateRunning
	case allTerminated:
		agg.State = StateTerminated
		agg.Done = allDone
	case allTerminal && anyStopped:
		agg.State = StateStopped
	case anyNew:
		agg.State = StateNew
	case anyUnknown:
		agg.State = StateUnknown
	default:
		agg.State = StateUnsubmitted
	}

	return agg
}
