// Package vcstest provides an in-memory vcs.Repository for tests.
package vcstest

import (
	"context"
	"fmt"
	"sync"

	"repolink/internal/vcs"
)

// Repo is a scripted repository. Heads are plain strings, commits are
// numbered, and errors can be injected per operation name ("fetch", "head",
// "pull", "commit", "push", "reset", "clean", "pending").
type Repo struct {
	mu sync.Mutex

	RemoteHead string
	LocalHead  string
	Dirty      bool
	Summary    vcs.Summary

	// OnPull and OnPush run after the matching operation succeeds, so tests
	// can mirror the effect on a local tree or on another clone.
	OnPull func()
	OnPush func()

	errs    map[string]error
	calls   []string
	commits int
	resets  []Reset
}

type Reset struct {
	Commit string
	Mode   vcs.ResetMode
}

func New(head string) *Repo {
	return &Repo{
		RemoteHead: head,
		LocalHead:  head,
		errs:       map[string]error{},
	}
}

func (r *Repo) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, op)
		return
	}
	r.errs[op] = err
}

func (r *Repo) SetRemote(head string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RemoteHead = head
}

// SetLocal moves the local head, as a merge done by hand would.
func (r *Repo) SetLocal(head string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LocalHead = head
}

func (r *Repo) SetDirty(dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Dirty = dirty
}

func (r *Repo) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Repo) Resets() []Reset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reset(nil), r.resets...)
}

func (r *Repo) Heads() (local, remote string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.LocalHead, r.RemoteHead
}

func (r *Repo) enter(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	return r.errs[op]
}

func (r *Repo) FetchHead(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.enter("fetch"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.RemoteHead, nil
}

func (r *Repo) CurrentHead(context.Context) (string, error) {
	if err := r.enter("head"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.LocalHead, nil
}

func (r *Repo) Pull(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.enter("pull"); err != nil {
		return err
	}
	r.mu.Lock()
	r.LocalHead = r.RemoteHead
	hook := r.OnPull
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (r *Repo) Commit(_ context.Context, _ string) (string, error) {
	if err := r.enter("commit"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Dirty {
		return "", vcs.ErrNothingToCommit
	}
	r.commits++
	r.LocalHead = fmt.Sprintf("local-%d", r.commits)
	r.Dirty = false
	return r.LocalHead, nil
}

func (r *Repo) Push(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.enter("push"); err != nil {
		return err
	}
	r.mu.Lock()
	r.RemoteHead = r.LocalHead
	hook := r.OnPush
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (r *Repo) Reset(_ context.Context, commit string, mode vcs.ResetMode) error {
	if err := r.enter("reset"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == vcs.ResetSoft && r.LocalHead != commit {
		r.Dirty = true
	}
	r.LocalHead = commit
	r.resets = append(r.resets, Reset{Commit: commit, Mode: mode})
	return nil
}

func (r *Repo) Clean(context.Context) (bool, error) {
	if err := r.enter("clean"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.Dirty, nil
}

func (r *Repo) Pending(context.Context, string) (vcs.Summary, error) {
	if err := r.enter("pending"); err != nil {
		return vcs.Summary{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Summary, nil
}

var _ vcs.Repository = (*Repo)(nil)
