// Package watch drives the reconciliation cycle for one link: snapshot both
// sides, classify, ask for confirmation when an action is proposed, apply it
// and persist the new baseline.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repolink/internal/logger"
	"repolink/internal/model"
	"repolink/internal/reconcile"
	"repolink/internal/vcs"
)

var ErrCycleInFlight = errors.New("a cycle is already running for this link")

const recordTimeout = 5 * time.Second

type Capturer interface {
	Capture(ctx context.Context, link *model.Link) reconcile.Capture
}

type Decider interface {
	Decide(result model.Divergence, cause error) model.Proposal
}

type Applier interface {
	Apply(ctx context.Context, proposal model.Proposal, link *model.Link) (model.Baseline, error)
}

type BaselineStore interface {
	SaveBaseline(ctx context.Context, link *model.Link) error
}

type Recorder interface {
	Record(ctx context.Context, report model.CycleReport) error
}

// Describer adds incoming commits and local changes to a proposal.
type Describer interface {
	Pending(ctx context.Context, branch string) (vcs.Summary, error)
}

type Options struct {
	Interval       time.Duration
	ConfirmTimeout time.Duration

	Store     BaselineStore
	Recorder  Recorder
	Describer Describer
}

type Status struct {
	State  model.LoopState    `json:"state"`
	Link   model.Link         `json:"link"`
	Cycles uint64             `json:"cycles"`
	Last   *model.CycleReport `json:"last,omitempty"`
}

type Loop struct {
	snap    Capturer
	policy  Decider
	exec    Applier
	confirm Confirmer
	opts    Options

	cycleMu sync.Mutex
	nudgeCh chan struct{}

	mu     sync.RWMutex
	link   model.Link
	state  model.LoopState
	cycles uint64
	last   *model.CycleReport

	// blocked is the remote head whose pull was refused because incoming
	// changes touch files edited locally. Only cycles touch it.
	blocked string
}

func NewLoop(link model.Link, snap Capturer, policy Decider, exec Applier, confirm Confirmer, opts Options) *Loop {
	return &Loop{
		snap:    snap,
		policy:  policy,
		exec:    exec,
		confirm: confirm,
		opts:    opts,
		nudgeCh: make(chan struct{}, 1),
		link:    link,
		state:   model.StateIdle,
	}
}

// Run executes a cycle immediately, then on every tick and every nudge until
// ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l.opts.Interval <= 0 {
		return fmt.Errorf("invalid interval: %s", l.opts.Interval)
	}

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	logger.Log.Info("watch loop started",
		zap.String("path", l.Link().LocalPath),
		zap.Duration("interval", l.opts.Interval))

	l.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("watch loop stopping")
			return nil
		case <-ticker.C:
			l.runOnce(ctx)
		case <-l.nudgeCh:
			l.runOnce(ctx)
		}
	}
}

// Nudge asks Run for an early cycle. Nudges arriving while one is pending
// are merged.
func (l *Loop) Nudge() {
	select {
	case l.nudgeCh <- struct{}{}:
	default:
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	if _, err := l.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Warn("cycle skipped", zap.Error(err))
	}
}

// RunCycle performs one full cycle. Only one cycle runs at a time; a second
// caller gets ErrCycleInFlight. Snapshot and apply failures are reported in
// the returned report, the error is reserved for cycles that did not run to
// completion.
func (l *Loop) RunCycle(ctx context.Context) (model.CycleReport, error) {
	if !l.cycleMu.TryLock() {
		return model.CycleReport{}, ErrCycleInFlight
	}
	defer l.cycleMu.Unlock()
	defer l.setState(model.StateIdle)

	l.mu.Lock()
	l.cycles++
	report := model.CycleReport{Cycle: l.cycles, StartedAt: time.Now()}
	link := l.link
	l.mu.Unlock()

	l.setState(model.StateSnapshotting)
	capture := l.snap.Capture(ctx, &link)
	if err := ctx.Err(); err != nil {
		return l.interrupt(ctx, report, err)
	}

	l.setState(model.StateDetecting)
	result := reconcile.Classify(link.Baseline, capture.Local, capture.Remote)
	if result == model.RemoteAhead && l.blocked != "" && l.blocked == capture.Remote.Identity {
		logger.Log.Info("incoming changes overlap local edits, merge by hand",
			zap.String("remote", capture.Remote.Short()))
		result = model.Diverged
	}
	report.Result = result

	if result != model.Unknown && link.Baseline == nil {
		seed := model.NewBaseline(*capture.Local, *capture.Remote)
		l.commitBaseline(ctx, &link, seed)
		report.Seeded = true
		report.Baseline = &seed
		logger.Log.Info("baseline seeded",
			zap.String("local", seed.Local.Short()),
			zap.String("remote", seed.Remote.Short()))
	}

	proposal := l.policy.Decide(result, capture.Err())
	report.Action = proposal.Action
	report.Rationale = proposal.Rationale

	switch proposal.Action {
	case model.ActionNoOp:
		if result == model.InSync {
			logger.Log.Debug("in sync", zap.Uint64("cycle", report.Cycle))
		} else {
			logger.Log.Info("changes left alone", zap.String("reason", proposal.Rationale))
		}
		return l.finish(ctx, report), nil
	case model.ActionRetry:
		logger.Log.Warn("state unknown, will retry",
			zap.Uint64("cycle", report.Cycle),
			zap.Error(capture.Err()))
		report.Err = errString(capture.Err())
		return l.finish(ctx, report), nil
	case model.ActionAlert:
		logger.Log.Error("reconciliation needs attention",
			zap.String("reason", proposal.Rationale))
		report.Err = errString(capture.Err())
		return l.finish(ctx, report), nil
	}

	proposal.ID = newProposalID()
	proposal.CreatedAt = time.Now()
	l.describe(ctx, &link, &proposal)

	logger.Log.Info("action proposed",
		zap.String("id", proposal.ID),
		zap.String("action", string(proposal.Action)),
		zap.String("result", string(result)))

	l.setState(model.StateAwaitingConfirmation)
	decision, err := l.await(ctx, proposal)
	if err != nil {
		return l.interrupt(ctx, report, err)
	}
	report.Decision = decision

	if decision != model.DecisionConfirmed {
		logger.Log.Info("proposal not applied",
			zap.String("id", proposal.ID),
			zap.String("decision", string(decision)))
		return l.finish(ctx, report), nil
	}

	l.setState(model.StateExecuting)
	baseline, err := l.exec.Apply(ctx, proposal, &link)
	if err != nil {
		logger.Log.Error("failed to apply proposal",
			zap.String("id", proposal.ID),
			zap.String("action", string(proposal.Action)),
			zap.Error(err))
		if proposal.Action == model.ActionProposePull && errors.Is(err, vcs.ErrConflict) {
			l.blocked = capture.Remote.Identity
		}
		if cerr := ctx.Err(); cerr != nil {
			return l.interrupt(ctx, report, fmt.Errorf("%w: %w", cerr, err))
		}
		report.Err = err.Error()
		return l.finish(ctx, report), nil
	}

	l.commitBaseline(ctx, &link, baseline)
	report.Applied = true
	report.Baseline = &baseline

	return l.finish(ctx, report), nil
}

// await asks for a decision within the confirmation timeout. Only parent
// cancellation is an error; an unanswered or failed prompt counts as timed
// out so the next cycle proposes again.
func (l *Loop) await(ctx context.Context, proposal model.Proposal) (model.Decision, error) {
	cctx := ctx
	if l.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, l.opts.ConfirmTimeout)
		defer cancel()
	}

	decision, err := l.confirm.Confirm(cctx, proposal)
	switch {
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		if !errors.Is(err, context.DeadlineExceeded) {
			logger.Log.Warn("confirmation failed", zap.Error(err))
		}
		return model.DecisionTimedOut, nil
	}

	return decision, nil
}

func (l *Loop) describe(ctx context.Context, link *model.Link, proposal *model.Proposal) {
	if l.opts.Describer == nil {
		return
	}

	summary, err := l.opts.Describer.Pending(ctx, link.Branch)
	if err != nil {
		logger.Log.Debug("failed to describe pending changes", zap.Error(err))
		return
	}

	for _, c := range summary.Incoming {
		proposal.Details = append(proposal.Details, "incoming: "+c)
	}
	for _, c := range summary.Changes {
		proposal.Details = append(proposal.Details, "local: "+c)
	}
}

func (l *Loop) commitBaseline(ctx context.Context, link *model.Link, baseline model.Baseline) {
	link.Baseline = &baseline
	l.blocked = ""

	l.mu.Lock()
	l.link.Baseline = &baseline
	l.mu.Unlock()

	if l.opts.Store == nil {
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := l.opts.Store.SaveBaseline(sctx, link); err != nil {
		logger.Log.Warn("failed to persist baseline", zap.Error(err))
	}
}

func (l *Loop) interrupt(ctx context.Context, report model.CycleReport, err error) (model.CycleReport, error) {
	report.Interrupted = true
	report.Err = err.Error()
	logger.Log.Info("cycle interrupted", zap.Uint64("cycle", report.Cycle))
	return l.finish(ctx, report), err
}

func (l *Loop) finish(ctx context.Context, report model.CycleReport) model.CycleReport {
	report.FinishedAt = time.Now()

	l.mu.Lock()
	l.last = &report
	l.mu.Unlock()

	if l.opts.Recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()

		if err := l.opts.Recorder.Record(rctx, report); err != nil {
			logger.Log.Warn("failed to record cycle", zap.Error(err))
		}
	}

	return report
}

func (l *Loop) setState(state model.LoopState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
}

func (l *Loop) State() model.LoopState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Link returns a copy of the link with its current baseline.
func (l *Loop) Link() model.Link {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.link
}

func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Status{
		State:  l.state,
		Link:   l.link,
		Cycles: l.cycles,
		Last:   l.last,
	}
}

func newProposalID() string {
	return uuid.NewString()[:8]
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
