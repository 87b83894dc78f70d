package rollout

// State is the rollout controller's state machine node
type State string

const (
	StatePending         State = "Pending"
	StateStageRunning    State = "StageRunning"
	StateStageEvaluating State = "StageEvaluating"
	StatePromoted        State = "Promoted"
	StateRolledBack      State = "RolledBack"
	StateAborted         State = "Aborted"
)

// Terminal reports whether the state ends the run
func (s State) Terminal() bool {
	switch s {
	case StatePromoted, StateRolledBack, StateAborted:
		return true
	}
	return false
}
