package upload

import (
	"fmt"
	"sort"
	"sync"

	"github.com/me/tessera/pkg/model"
)

// UnitState is the lifecycle state of one registered upload unit.
type UnitState string

const (
	UnitWaiting   UnitState = "WAITING"
	UnitUploading UnitState = "UPLOADING"
	UnitComplete  UnitState = "COMPLETE"
	UnitFailed    UnitState = "FAILED"
)

// Unit is one registered upload: typically a single acquisition file.
type Unit struct {
	Name  string    `json:"name"`
	State UnitState `json:"state"`
}

// Tracker records the state of every registered upload unit and derives the
// synthetic status of the reserved upload stage from them. The upload stage
// never talks to the execution backend.
type Tracker struct {
	mu    sync.Mutex
	units map[string]UnitState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{units: make(map[string]UnitState)}
}

// Register adds a unit in WAITING state. Re-registering an existing unit
// resets it to WAITING.
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units[name] = UnitWaiting
}

// SetState records a state transition for a registered unit.
func (t *Tracker) SetState(name string, state UnitState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.units[name]; !ok {
		return fmt.Errorf("upload unit %q not registered", name)
	}
	t.units[name] = state
	return nil
}

// Units returns a name-sorted snapshot of all registered units.
func (t *Tracker) Units() []Unit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Unit, 0, len(t.units))
	for name, state := range t.units {
		out = append(out, Unit{Name: name, State: state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summary computes the upload stage's synthetic status:
// failed when any unit FAILED; percent done is the share of units that have
// finished either way; TERMINATED only when every unit is COMPLETE, RUNNING
// while anything is UPLOADING, NEW otherwise. An empty tracker reports NEW.
func (t *Tracker) Summary() model.Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := len(t.units)
	if total == 0 {
		return model.Status{State: model.StateNew}
	}

	var complete, failed, uploading int
	for _, state := range t.units {
		switch state {
		case UnitComplete:
			complete++
		case UnitFailed:
			failed++
		case UnitUploading:
			uploading++
		}
	}

	status := model.Status{
		Failed:      failed > 0,
		PercentDone: 100 * float64(complete+failed) / float64(total),
	}

	switch {
	case complete == total:
		status.State = model.StateTerminated
		status.Done = true
	case uploading > 0:
		status.State = model.StateRunning
	default:
		status.State = model.StateNew
	}

	return status
}
