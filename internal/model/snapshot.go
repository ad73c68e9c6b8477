package model

import "time"

type Source string

const (
	SourceLocal  Source = "LOCAL"
	SourceRemote Source = "REMOTE"
)

// Snapshot is the fingerprint of one side of a link at an instant. For the
// local side Identity is a tree hash, for the remote side a commit id.
type Snapshot struct {
	Source   Source    `json:"source"`
	Identity string    `json:"identity"`
	Branch   string    `json:"branch"`
	TakenAt  time.Time `json:"taken_at"`
}

func (s Snapshot) Short() string {
	if len(s.Identity) > 10 {
		return s.Identity[:10]
	}
	return s.Identity
}

// Baseline is the last (local, remote) pair that was known to be consistent.
type Baseline struct {
	Local        Snapshot  `json:"local"`
	Remote       Snapshot  `json:"remote"`
	ReconciledAt time.Time `json:"reconciled_at"`
}

func NewBaseline(local, remote Snapshot) Baseline {
	return Baseline{
		Local:        local,
		Remote:       remote,
		ReconciledAt: time.Now(),
	}
}
