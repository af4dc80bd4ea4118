package compare

import (
	"time"

	"github.com/sweetpotato0/gramflow/stream"
)

// Diagnostic is the one-shot analysis of the unconstrained output fed back
// through the grammar: whether the free text belongs to the language at
// all, whether it reached a complete program, and how many well-typed
// parses it admits. Error is set when the analysis call itself failed;
// that degrades the diagnostic, never the run.
type Diagnostic struct {
	Valid              bool   `json:"valid"`
	IsComplete         bool   `json:"is_complete"`
	WellTypedTreeCount int    `json:"well_typed_tree_count"`
	TypeError          string `json:"type_error,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Snapshot is an immutable copy of the observable session state. The
// observer receives one per state change, in dispatch order.
type Snapshot struct {
	ID            string            `json:"id,omitempty"`
	Phase         Phase             `json:"phase"`
	Status        string            `json:"status,omitempty"`
	Unconstrained string            `json:"unconstrained"`
	Constrained   string            `json:"constrained"`
	StopReason    stream.StopReason `json:"stop_reason,omitempty"`
	IsComplete    bool              `json:"is_complete"`
	Diagnostic    *Diagnostic       `json:"diagnostic,omitempty"`
	Err           string            `json:"error,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
}

// Terminal reports whether this snapshot ends a run.
func (s Snapshot) Terminal() bool {
	return s.Phase.Terminal()
}
