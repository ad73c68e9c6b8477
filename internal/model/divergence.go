package model

import "time"

type Divergence string

const (
	InSync      Divergence = "IN_SYNC"
	LocalAhead  Divergence = "LOCAL_AHEAD"
	RemoteAhead Divergence = "REMOTE_AHEAD"
	Diverged    Divergence = "DIVERGED"
	Unknown     Divergence = "UNKNOWN"
)

type Action string

const (
	ActionNoOp               Action = "NOOP"
	ActionProposePull        Action = "PROPOSE_PULL"
	ActionProposePush        Action = "PROPOSE_PUSH"
	ActionProposeManualMerge Action = "PROPOSE_MANUAL_MERGE"
	ActionRetry              Action = "RETRY"
	ActionAlert              Action = "ALERT"
)

// NeedsConfirmation reports whether the action may only run after an
// explicit confirmation.
func (a Action) NeedsConfirmation() bool {
	switch a {
	case ActionProposePull, ActionProposePush, ActionProposeManualMerge:
		return true
	default:
		return false
	}
}

type Decision string

const (
	DecisionConfirmed Decision = "CONFIRMED"
	DecisionRejected  Decision = "REJECTED"
	DecisionTimedOut  Decision = "TIMED_OUT"
)

type Proposal struct {
	ID         string     `json:"id"`
	Action     Action     `json:"action"`
	Divergence Divergence `json:"divergence"`
	Rationale  string     `json:"rationale"`
	Details    []string   `json:"details,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
