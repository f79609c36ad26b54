package model

// Operation is the kind of change a mutation applies to a resource.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// CheckpointAction identifies why a checkpoint was created.
type CheckpointAction string

const (
	ActionPreMutation    CheckpointAction = "pre_mutation"
	ActionTokenThreshold CheckpointAction = "token_threshold"
	ActionManual         CheckpointAction = "manual"
)

// CheckpointState is the approval state machine position of a checkpoint.
type CheckpointState string

const (
	StateCreated         CheckpointState = "created"
	StatePendingApproval CheckpointState = "pending_approval"
	StateApproved        CheckpointState = "approved"
	StateRejected        CheckpointState = "rejected"
	StateExecuted        CheckpointState = "executed"
	StateRolledBack      CheckpointState = "rolled_back"
)

// Terminal reports whether no further transitions are permitted from s.
func (s CheckpointState) Terminal() bool {
	switch s {
	case StateRejected, StateExecuted, StateRolledBack:
		return true
	}
	return false
}

// validTransitions is the closed transition table of the approval state machine.
// StateCreated never appears as a stored state: creation lands directly in
// pending_approval or approved.
var validTransitions = map[CheckpointState][]CheckpointState{
	StateCreated:         {StatePendingApproval, StateApproved},
	StatePendingApproval: {StateApproved, StateRejected},
	StateApproved:        {StateExecuted, StateRolledBack},
}

// ValidTransition reports whether from -> to is a permitted state change.
func ValidTransition(from, to CheckpointState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string
