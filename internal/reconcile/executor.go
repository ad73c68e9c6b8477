package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repolink/internal/logger"
	"repolink/internal/model"
	"repolink/internal/vcs"
)

const (
	DefaultRollbackTimeout = 30 * time.Second
	DefaultSettleTimeout   = 2 * time.Minute
	commitTimeFormat       = "2006-01-02 15:04:05"
)

type Capturer interface {
	Capture(ctx context.Context, link *model.Link) Capture
}

type ExecutorOptions struct {
	// RollbackTimeout bounds the reset that undoes a failed action.
	RollbackTimeout time.Duration
	// SettleTimeout bounds the re-snapshot after an applied action.
	SettleTimeout time.Duration
}

// Executor applies a confirmed proposal through the version-control
// capability. It never leaves the link half applied: a failure is rolled back
// and the previous baseline kept, a success is re-observed and becomes the new
// baseline.
type Executor struct {
	repo vcs.Repository
	snap Capturer
	opts ExecutorOptions
	now  func() time.Time
}

func NewExecutor(repo vcs.Repository, snap Capturer, opts ExecutorOptions) *Executor {
	if opts.RollbackTimeout <= 0 {
		opts.RollbackTimeout = DefaultRollbackTimeout
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}

	return &Executor{
		repo: repo,
		snap: snap,
		opts: opts,
		now:  time.Now,
	}
}

// Apply runs the proposal's action. On success it returns the freshly
// captured baseline; on failure it returns the link's current baseline
// unchanged together with the error.
func (e *Executor) Apply(ctx context.Context, proposal model.Proposal, link *model.Link) (model.Baseline, error) {
	var old model.Baseline
	if link.Baseline != nil {
		old = *link.Baseline
	}

	var err error
	switch proposal.Action {
	case model.ActionProposePush:
		err = e.push(ctx, link)
	case model.ActionProposePull:
		err = e.pull(ctx, link)
	case model.ActionProposeManualMerge:
		err = e.verifyMerged(ctx, link)
	default:
		return old, fmt.Errorf("%w: %s", ErrNotApplicable, proposal.Action)
	}
	if err != nil {
		return old, err
	}

	// The action is done. Observe the result even if the caller has gone
	// away, so the link resolves to an updated baseline.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SettleTimeout)
	defer cancel()

	capture := e.snap.Capture(sctx, link)
	if err := capture.Err(); err != nil {
		return old, fmt.Errorf("failed to re-snapshot after %s: %w", proposal.Action, err)
	}

	baseline := model.Baseline{
		Local:        *capture.Local,
		Remote:       *capture.Remote,
		ReconciledAt: e.now(),
	}

	logger.Log.Info("baseline updated",
		zap.String("action", string(proposal.Action)),
		zap.String("local", baseline.Local.Short()),
		zap.String("remote", baseline.Remote.Short()))

	return baseline, nil
}

func (e *Executor) push(ctx context.Context, link *model.Link) error {
	prev, err := e.repo.CurrentHead(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVCS, err)
	}

	msg := "Auto-commit - " + e.now().Format(commitTimeFormat)
	if _, err := e.repo.Commit(ctx, msg); err != nil && !errors.Is(err, vcs.ErrNothingToCommit) {
		return e.rollback(ctx, prev, vcs.ResetSoft, err)
	}

	if err := e.repo.Push(ctx, link.Branch); err != nil {
		return e.rollback(ctx, prev, vcs.ResetSoft, err)
	}

	logger.Log.Info("pushed local changes", zap.String("branch", link.Branch))
	return nil
}

func (e *Executor) pull(ctx context.Context, link *model.Link) error {
	prev, err := e.repo.CurrentHead(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVCS, err)
	}

	if err := e.repo.Pull(ctx, link.Branch); err != nil {
		return e.rollback(ctx, prev, vcs.ResetMerge, err)
	}

	logger.Log.Info("pulled remote changes", zap.String("branch", link.Branch))
	return nil
}

func (e *Executor) verifyMerged(ctx context.Context, link *model.Link) error {
	remote, err := e.repo.FetchHead(ctx, link.Branch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVCS, err)
	}

	local, err := e.repo.CurrentHead(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVCS, err)
	}

	clean, err := e.repo.Clean(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVCS, err)
	}

	switch {
	case local != remote:
		return fmt.Errorf("%w: %w: local %s, remote %s", ErrVCS, ErrStillDiverged, shortID(local), shortID(remote))
	case !clean:
		return fmt.Errorf("%w: %w: uncommitted changes in %s", ErrVCS, ErrStillDiverged, link.LocalPath)
	}

	return nil
}

// rollback moves HEAD back to prev and returns cause wrapped as a vcs
// failure. It runs detached from ctx so a cancelled cycle still restores the
// previous state.
func (e *Executor) rollback(ctx context.Context, prev string, mode vcs.ResetMode, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.RollbackTimeout)
	defer cancel()

	failed := fmt.Errorf("%w: %w", ErrVCS, cause)

	head, err := e.repo.CurrentHead(rctx)
	if err == nil && head == prev {
		return failed
	}

	err = e.repo.Reset(rctx, prev, mode)
	if err != nil && mode == vcs.ResetMerge {
		logger.Log.Warn("merge reset failed, falling back to soft reset", zap.Error(err))
		err = e.repo.Reset(rctx, prev, vcs.ResetSoft)
	}
	if err != nil {
		logger.Log.Error("rollback failed", zap.String("target", shortID(prev)), zap.Error(err))
		return errors.Join(failed, fmt.Errorf("%w: %w", ErrRollback, err))
	}

	logger.Log.Warn("rolled back", zap.String("target", shortID(prev)), zap.Error(cause))
	return failed
}

func shortID(id string) string {
	if id == "" {
		return "(none)"
	}
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
