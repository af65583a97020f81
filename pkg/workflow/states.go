package workflow

import "time"

// State is a stage-transition workflow state.
type State string

// Workflow states.
const (
	StateIdle                State = "IDLE"
	StateConfiguring         State = "CONFIGURING"
	StateApprovalPending     State = "APPROVAL_PENDING"
	StateCommitting          State = "COMMITTING"
	StateSideEffects         State = "SIDE_EFFECTS"
	StateNotificationPending State = "NOTIFICATION_PENDING"
	StateFailed              State = "FAILED"
	StateClosed              State = "CLOSED"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// TransitionTable maps a state to the states it may move to.
type TransitionTable map[State][]State

// ValidTransitions is the workflow's transition table. Closing is allowed from every
// state and is not listed.
//
//nolint:gochecknoglobals // transition table
var ValidTransitions = TransitionTable{
	StateIdle:                {StateConfiguring},
	StateConfiguring:         {StateApprovalPending, StateCommitting},
	StateApprovalPending:     {StateCommitting, StateConfiguring, StateFailed}, // invalid answers go back to CONFIGURING
	StateCommitting:          {StateSideEffects, StateFailed},
	StateSideEffects:         {StateNotificationPending},
	StateNotificationPending: {},
	StateFailed:              {StateConfiguring},
	StateClosed:              {},
}

// IsValidTransition reports whether from may move to to.
func (t TransitionTable) IsValidTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateTransition is one entry of the workflow's history.
type StateTransition struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Metadata  map[string]any
}
