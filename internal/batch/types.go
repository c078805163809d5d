package batch

import (
	"encoding/json"
	"fmt"

	"github.com/me/tessera/pkg/model"
)

// TaskNode is one node of the backend's status document: a recursive tree
// where the root describes the whole workflow and leaves describe single
// jobs. The tree is positionally, not nominally, addressed: subtask i of
// the root always corresponds to processing stage i of the description.
type TaskNode struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	State       string  `json:"state"`
	Done        bool    `json:"done"`
	Failed      bool    `json:"failed"`
	PercentDone float64 `json:"percent_done"`

	// Leaf-only resource accounting.
	ExitCode *int    `json:"exit_code,omitempty"`
	CPUTime  float64 `json:"cpu_time,omitempty"`
	WallTime float64 `json:"wall_time,omitempty"`
	Memory   int64   `json:"memory,omitempty"`

	Subtasks []TaskNode `json:"subtasks,omitempty"`
}

// Task-type tags the backend attaches to phase nodes. Leaves under a
// "collect" node belong to the result-collection phase; everything else is
// primary execution.
const (
	TaskTypeRun     = "run"
	TaskTypeCollect = "collect"
)

// IsLeaf reports whether the node is a single-job record.
func (n *TaskNode) IsLeaf() bool {
	return len(n.Subtasks) == 0
}

// Status converts the node's raw fields into a model.Status, mapping
// unrecognized states to UNKNOWN and clamping percent_done into [0,100].
func (n *TaskNode) Status() model.Status {
	pct := n.PercentDone
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return model.Status{
		State:       model.ParseState(n.State),
		Done:        n.Done,
		Failed:      n.Failed,
		PercentDone: pct,
	}
}

// DecodeTaskNode parses and validates a raw status document. This is the
// single ingestion boundary: past this point the engine only ever sees the
// typed tree.
func DecodeTaskNode(raw json.RawMessage) (*TaskNode, error) {
	var node TaskNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode status document: %w", err)
	}
	return &node, nil
}
