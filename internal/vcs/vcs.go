// Package vcs is the version-control capability the reconciliation engine
// calls into. Git is the go-git backed implementation.
package vcs

import "context"

type ResetMode int

const (
	// ResetSoft moves HEAD only, keeping index and worktree.
	ResetSoft ResetMode = iota
	// ResetMerge moves HEAD and restores files that differ between the
	// target commit and HEAD, keeping unrelated local edits.
	ResetMerge
)

type Summary struct {
	Incoming []string `json:"incoming,omitempty"`
	Changes  []string `json:"changes,omitempty"`
}

type Repository interface {
	FetchHead(ctx context.Context, branch string) (string, error)
	CurrentHead(ctx context.Context) (string, error)
	Pull(ctx context.Context, branch string) error
	Commit(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, branch string) error
	Reset(ctx context.Context, commit string, mode ResetMode) error
	Clean(ctx context.Context) (bool, error)
	Pending(ctx context.Context, branch string) (Summary, error)
}
