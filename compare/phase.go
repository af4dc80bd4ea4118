package compare

// Phase is the lifecycle position of a session. Exactly one phase is
// current at any time; Done, Stopped and Errored are terminal and only
// Clear leaves them.
type Phase string

const (
	// PhaseIdle means no run is in flight and no output is held.
	PhaseIdle Phase = "idle"
	// PhaseRunningUnconstrained means the free pass is streaming.
	PhaseRunningUnconstrained Phase = "running_unconstrained"
	// PhaseRunningConstrained means the grammar-masked pass is streaming.
	PhaseRunningConstrained Phase = "running_constrained"
	// PhaseDone means both passes finished normally.
	PhaseDone Phase = "done"
	// PhaseStopped means the run was cancelled before finishing.
	PhaseStopped Phase = "stopped"
	// PhaseErrored means a phase failed to open, the stream broke, or the
	// server pushed an error event.
	PhaseErrored Phase = "errored"
)

func (p Phase) String() string {
	return string(p)
}

// Running reports whether a generation stream is being consumed.
func (p Phase) Running() bool {
	return p == PhaseRunningUnconstrained || p == PhaseRunningConstrained
}

// Terminal reports whether the phase ends a run. Idle is not terminal:
// it precedes a run rather than ending one.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseStopped || p == PhaseErrored
}
