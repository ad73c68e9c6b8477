package model

import "time"

type LoopState string

const (
	StateIdle                 LoopState = "IDLE"
	StateSnapshotting         LoopState = "SNAPSHOTTING"
	StateDetecting            LoopState = "DETECTING"
	StateAwaitingConfirmation LoopState = "AWAITING_CONFIRMATION"
	StateExecuting            LoopState = "EXECUTING"
)

type CycleReport struct {
	Cycle       uint64     `json:"cycle"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Result      Divergence `json:"result"`
	Action      Action     `json:"action"`
	Decision    Decision   `json:"decision,omitempty"`
	Rationale   string     `json:"rationale,omitempty"`
	Err         string     `json:"error,omitempty"`
	Seeded      bool       `json:"seeded,omitempty"`
	Applied     bool       `json:"applied,omitempty"`
	Baseline    *Baseline  `json:"baseline,omitempty"`
	Interrupted bool       `json:"interrupted,omitempty"`
}
