// Package models defines the workflow state machine's closed vocabulary and
// the instance record it operates on.
package models

import "time"

// State is a workflow lifecycle state. The set is closed; persistence and
// transport layers parse into it rather than passing raw strings around.
type State string

const (
	StateDraft       State = "draft"
	StateUnderReview State = "under_review"
	StateEscalated   State = "escalated"
	StateApproved    State = "approved"
	StateRejected    State = "rejected"
)

// ParseState validates a stored state string.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateDraft, StateUnderReview, StateEscalated, StateApproved, StateRejected:
		return State(s), true
	}
	return "", false
}

// Terminal reports whether no further transitions are permitted.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// Action is a workflow transition trigger.
type Action string

const (
	ActionReview   Action = "review"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionEscalate Action = "escalate"
)

// transitions is the static table. Approve targets are nominal: the approve
// action consumes an approval-chain level instead of following the table
// target, and only completes to approved when the chain is exhausted.
var transitions = map[State]map[Action]State{
	StateDraft: {
		ActionReview: StateUnderReview,
		ActionReject: StateRejected,
	},
	StateUnderReview: {
		ActionApprove:  StateUnderReview,
		ActionReject:   StateRejected,
		ActionEscalate: StateEscalated,
	},
	StateEscalated: {
		ActionApprove: StateUnderReview,
		ActionReject:  StateRejected,
	},
}

// Next returns the table target for (s, action) and whether the action is
// permitted from s at all.
func (s State) Next(action Action) (State, bool) {
	next, ok := transitions[s][action]
	return next, ok
}

// Instance is one governed entity's workflow record. Created once, mutated
// only through validated transitions, never deleted: approved and rejected
// instances are retained as terminal history.
type Instance struct {
	EntityID      string
	EntityType    string
	TenantID      string
	State         State
	ApprovalLevel int
	// ApprovalChain is fixed at creation; re-deriving it later never changes
	// an in-flight chain.
	ApprovalChain []string
	Context       map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PendingRole returns the role expected to approve at the current level, or
// "" when the chain is exhausted.
func (i *Instance) PendingRole() string {
	if i.ApprovalLevel < 0 || i.ApprovalLevel >= len(i.ApprovalChain) {
		return ""
	}
	return i.ApprovalChain[i.ApprovalLevel]
}

// Outcome reports the result of one transition attempt. Invalid attempts are
// data, not errors: callers inspect Applied and Reason.
type Outcome struct {
	Applied  bool
	State    State
	Level    int
	Complete bool
	Reason   string
}
