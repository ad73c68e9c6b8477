package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolink/internal/model"
	"repolink/internal/reconcile"
	"repolink/internal/vcs"
	"repolink/internal/vcs/vcstest"
)

type memStore struct {
	mu    sync.Mutex
	saved []model.Baseline
}

func (s *memStore) SaveBaseline(_ context.Context, link *model.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *link.Baseline)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type memRecorder struct {
	mu      sync.Mutex
	reports []model.CycleReport
}

func (r *memRecorder) Record(_ context.Context, report model.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// scripted answers confirmations from a fixed list and counts the calls.
type scripted struct {
	mu      sync.Mutex
	answers []model.Decision
	seen    []model.Proposal
}

func (s *scripted) Confirm(_ context.Context, p model.Proposal) (model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, p)
	if len(s.answers) == 0 {
		return model.DecisionRejected, nil
	}
	d := s.answers[0]
	s.answers = s.answers[1:]
	return d, nil
}

func (s *scripted) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// blocking never answers; it waits for its context.
type blocking struct {
	entered chan struct{}
}

func (b *blocking) Confirm(ctx context.Context, _ model.Proposal) (model.Decision, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}

type env struct {
	fs     billy.Filesystem
	repo   *vcstest.Repo
	store  *memStore
	rec    *memRecorder
	snap   *reconcile.Snapshotter
	policy *reconcile.Policy
	exec   *reconcile.Executor
	link   model.Link
	loop   *Loop
}

type capturerFunc func(ctx context.Context, link *model.Link) reconcile.Capture

func (f capturerFunc) Capture(ctx context.Context, link *model.Link) reconcile.Capture {
	return f(ctx, link)
}

type applierFunc func(ctx context.Context, p model.Proposal, link *model.Link) (model.Baseline, error)

func (f applierFunc) Apply(ctx context.Context, p model.Proposal, link *model.Link) (model.Baseline, error) {
	return f(ctx, p, link)
}

func newEnv(t *testing.T, confirm Confirmer, opts Options) *env {
	t.Helper()

	e := &env{
		fs:    memfs.New(),
		repo:  vcstest.New("c1"),
		store: &memStore{},
		rec:   &memRecorder{},
	}
	e.write(t, "a.txt", "alpha")

	e.snap = reconcile.NewSnapshotter(e.repo, reconcile.SnapshotOptions{
		Ignore: []string{".git"},
		FS:     func(string) billy.Filesystem { return e.fs },
	})
	e.policy = reconcile.NewPolicy(reconcile.PolicyOptions{MaxRetries: 1, MaxAuthFailures: 2})
	e.exec = reconcile.NewExecutor(e.repo, e.snap, reconcile.ExecutorOptions{})

	opts.Store = e.store
	opts.Recorder = e.rec
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}

	e.link = model.Link{LocalPath: "/work", RemoteURL: "https://example.com/r.git", Branch: "main"}
	e.loop = NewLoop(e.link, e.snap, e.policy, e.exec, confirm, opts)
	return e
}

func (e *env) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(e.fs, name, []byte(content), 0o644))
}

func (e *env) cycle(t *testing.T) model.CycleReport {
	t.Helper()
	report, err := e.loop.RunCycle(context.Background())
	require.NoError(t, err)
	return report
}

func TestRunCycle_SeedsBaseline(t *testing.T) {
	e := newEnv(t, &scripted{}, Options{})

	report := e.cycle(t)
	assert.True(t, report.Seeded)
	assert.Equal(t, model.InSync, report.Result)
	assert.Equal(t, model.ActionNoOp, report.Action)
	require.NotNil(t, e.loop.Link().Baseline)
	assert.Equal(t, "c1", e.loop.Link().Baseline.Remote.Identity)
	assert.Equal(t, 1, e.store.count())
	assert.Equal(t, model.StateIdle, e.loop.State())
}

func TestRunCycle_Idempotent(t *testing.T) {
	confirm := &scripted{}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)

	for range 2 {
		report := e.cycle(t)
		assert.Equal(t, model.InSync, report.Result)
		assert.Equal(t, model.ActionNoOp, report.Action)
		assert.False(t, report.Seeded)
	}

	assert.Zero(t, confirm.calls())
	assert.Equal(t, 1, e.store.count())
	assert.Equal(t, 3, e.rec.count())
}

func TestRunCycle_LocalAddPushed(t *testing.T) {
	confirm := &scripted{answers: []model.Decision{model.DecisionConfirmed}}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)
	before := *e.loop.Link().Baseline

	e.write(t, "b.txt", "beta")
	e.repo.SetDirty(true)

	report := e.cycle(t)
	assert.Equal(t, model.LocalAhead, report.Result)
	assert.Equal(t, model.ActionProposePush, report.Action)
	assert.Equal(t, model.DecisionConfirmed, report.Decision)
	assert.True(t, report.Applied)
	assert.Empty(t, report.Err)

	after := e.loop.Link().Baseline
	require.NotNil(t, after)
	assert.NotEqual(t, before.Local.Identity, after.Local.Identity)
	assert.Equal(t, "local-1", after.Remote.Identity)
	assert.Equal(t, 2, e.store.count())

	next := e.cycle(t)
	assert.Equal(t, model.InSync, next.Result)
	assert.Equal(t, 1, confirm.calls())
}

func TestRunCycle_DivergedRejected(t *testing.T) {
	confirm := &scripted{answers: []model.Decision{model.DecisionRejected, model.DecisionRejected}}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)
	before := *e.loop.Link().Baseline

	e.write(t, "a.txt", "edited")
	e.repo.SetRemote("c2")

	first := e.cycle(t)
	assert.Equal(t, model.Diverged, first.Result)
	assert.Equal(t, model.ActionProposeManualMerge, first.Action)
	assert.Equal(t, model.DecisionRejected, first.Decision)
	assert.False(t, first.Applied)
	assert.Equal(t, before, *e.loop.Link().Baseline)

	second := e.cycle(t)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, before, *e.loop.Link().Baseline)

	assert.Equal(t, 2, confirm.calls())
	assert.NotContains(t, e.repo.Calls(), "pull")
	assert.NotContains(t, e.repo.Calls(), "push")
}

func TestRunCycle_ApplyFailureKeepsBaseline(t *testing.T) {
	confirm := &scripted{answers: []model.Decision{model.DecisionConfirmed}}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)
	before := *e.loop.Link().Baseline

	e.repo.SetRemote("c2")
	e.repo.Fail("pull", fmt.Errorf("pull: %w", vcs.ErrNotFastForward))

	report := e.cycle(t)
	assert.Equal(t, model.ActionProposePull, report.Action)
	assert.False(t, report.Applied)
	assert.Contains(t, report.Err, vcs.ErrNotFastForward.Error())
	assert.Equal(t, before, *e.loop.Link().Baseline)
	assert.Equal(t, 1, e.store.count())
}

func TestRunCycle_ConfirmationTimeout(t *testing.T) {
	confirm := &blocking{entered: make(chan struct{}, 1)}
	e := newEnv(t, confirm, Options{ConfirmTimeout: 20 * time.Millisecond})
	e.cycle(t)
	before := *e.loop.Link().Baseline

	e.repo.SetRemote("c2")

	report := e.cycle(t)
	assert.Equal(t, model.DecisionTimedOut, report.Decision)
	assert.False(t, report.Applied)
	assert.False(t, report.Interrupted)
	assert.Equal(t, before, *e.loop.Link().Baseline)
	assert.Equal(t, model.StateIdle, e.loop.State())

	again := e.cycle(t)
	assert.Equal(t, model.ActionProposePull, again.Action)
	assert.Equal(t, model.DecisionTimedOut, again.Decision)
}

func TestRunCycle_CancelledWhileAwaiting(t *testing.T) {
	confirm := &blocking{entered: make(chan struct{}, 1)}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)
	before := *e.loop.Link().Baseline

	e.repo.SetRemote("c2")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-confirm.entered
		cancel()
	}()

	report, err := e.loop.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Interrupted)
	assert.Equal(t, before, *e.loop.Link().Baseline)
	assert.Equal(t, model.StateIdle, e.loop.State())
}

func TestRunCycle_CancelledWhileSnapshotting(t *testing.T) {
	e := newEnv(t, &scripted{}, Options{})

	entered := make(chan struct{})
	slow := capturerFunc(func(ctx context.Context, link *model.Link) reconcile.Capture {
		close(entered)
		<-ctx.Done()
		return e.snap.Capture(ctx, link)
	})
	loop := NewLoop(e.link, slow, e.policy, e.exec, &scripted{}, Options{Store: e.store, Recorder: e.rec})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		assert.Equal(t, model.StateSnapshotting, loop.State())
		cancel()
	}()

	report, err := loop.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Interrupted)
	assert.False(t, report.Seeded)
	assert.Nil(t, loop.Link().Baseline, "an interrupted first cycle seeds nothing")
	assert.Zero(t, e.store.count())
	assert.Equal(t, model.StateIdle, loop.State())
	assert.Empty(t, e.repo.Calls())
}

func TestRunCycle_CancelledWhileExecuting(t *testing.T) {
	t.Run("failed action is rolled back", func(t *testing.T) {
		confirm := &scripted{answers: []model.Decision{model.DecisionConfirmed}}
		e := newEnv(t, confirm, Options{})
		e.cycle(t)
		before := *e.loop.Link().Baseline

		ctx, cancel := context.WithCancel(context.Background())
		interrupting := applierFunc(func(actx context.Context, p model.Proposal, link *model.Link) (model.Baseline, error) {
			assert.Equal(t, model.StateExecuting, e.loop.State())
			cancel()
			return e.exec.Apply(actx, p, link)
		})
		e.loop.exec = interrupting

		e.write(t, "b.txt", "beta")
		e.repo.SetDirty(true)

		report, err := e.loop.RunCycle(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, report.Interrupted)
		assert.False(t, report.Applied)
		assert.Equal(t, model.ActionProposePush, report.Action)
		assert.Equal(t, before, *e.loop.Link().Baseline)
		assert.Equal(t, 1, e.store.count())
		assert.Equal(t, []vcstest.Reset{{Commit: "c1", Mode: vcs.ResetSoft}}, e.repo.Resets())

		local, remote := e.repo.Heads()
		assert.Equal(t, "c1", local)
		assert.Equal(t, "c1", remote)
		assert.Equal(t, model.StateIdle, e.loop.State())
	})

	t.Run("completed action updates the baseline", func(t *testing.T) {
		confirm := &scripted{answers: []model.Decision{model.DecisionConfirmed}}
		e := newEnv(t, confirm, Options{})
		e.cycle(t)

		ctx, cancel := context.WithCancel(context.Background())
		e.repo.OnPush = cancel

		e.write(t, "b.txt", "beta")
		e.repo.SetDirty(true)

		report, err := e.loop.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, report.Applied)
		assert.False(t, report.Interrupted)

		_, remote := e.repo.Heads()
		assert.Equal(t, "local-1", remote)
		assert.Equal(t, "local-1", e.loop.Link().Baseline.Remote.Identity)
		assert.Equal(t, 2, e.store.count())
	})
}

func TestRunCycle_OverlappingPullBecomesManualMerge(t *testing.T) {
	confirm := &scripted{answers: []model.Decision{model.DecisionConfirmed, model.DecisionRejected, model.DecisionRejected}}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)
	before := *e.loop.Link().Baseline

	e.repo.SetRemote("c2")
	e.repo.Fail("pull", fmt.Errorf("pull: %w: local edits to a.txt", vcs.ErrConflict))

	report := e.cycle(t)
	assert.Equal(t, model.ActionProposePull, report.Action)
	assert.False(t, report.Applied)
	assert.Contains(t, report.Err, vcs.ErrConflict.Error())

	report = e.cycle(t)
	assert.Equal(t, model.Diverged, report.Result)
	assert.Equal(t, model.ActionProposeManualMerge, report.Action, "the same pull is not proposed again")
	assert.Equal(t, before, *e.loop.Link().Baseline)

	e.repo.SetRemote("c3")
	report = e.cycle(t)
	assert.Equal(t, model.RemoteAhead, report.Result, "a newer remote head may pull cleanly")
	assert.Equal(t, model.ActionProposePull, report.Action)
}

func TestRunCycle_ManualMergeAfterOverlappingPull(t *testing.T) {
	confirm := &scripted{answers: []model.Decision{model.DecisionConfirmed, model.DecisionConfirmed, model.DecisionConfirmed}}
	e := newEnv(t, confirm, Options{})
	e.cycle(t)

	e.repo.SetRemote("c2")
	e.repo.Fail("pull", fmt.Errorf("pull: %w", vcs.ErrConflict))
	e.cycle(t)

	report := e.cycle(t)
	assert.Equal(t, model.ActionProposeManualMerge, report.Action)
	assert.False(t, report.Applied)
	assert.Contains(t, report.Err, reconcile.ErrStillDiverged.Error())

	e.repo.SetLocal("c2")
	report = e.cycle(t)
	assert.Equal(t, model.ActionProposeManualMerge, report.Action)
	require.True(t, report.Applied, report.Err)
	assert.Equal(t, "c2", e.loop.Link().Baseline.Remote.Identity)

	report = e.cycle(t)
	assert.Equal(t, model.InSync, report.Result)
	assert.Equal(t, model.ActionNoOp, report.Action)
}

func TestRunCycle_HoldPushReportsOnly(t *testing.T) {
	confirm := &scripted{}
	e := newEnv(t, confirm, Options{})
	e.loop.policy = reconcile.NewPolicy(reconcile.PolicyOptions{MaxRetries: 1, MaxAuthFailures: 2, HoldPush: true})
	e.cycle(t)

	e.write(t, "b.txt", "beta")
	e.repo.SetDirty(true)

	report := e.cycle(t)
	assert.Equal(t, model.LocalAhead, report.Result)
	assert.Equal(t, model.ActionNoOp, report.Action)
	assert.Contains(t, report.Rationale, "pushing is disabled")
	assert.Zero(t, confirm.calls())
	assert.NotContains(t, e.repo.Calls(), "push")
}

func TestRunCycle_SingleFlight(t *testing.T) {
	confirm := &blocking{entered: make(chan struct{}, 1)}
	e := newEnv(t, confirm, Options{ConfirmTimeout: 200 * time.Millisecond})
	e.cycle(t)
	e.repo.SetRemote("c2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.loop.RunCycle(ctx)
	}()

	<-confirm.entered
	assert.Equal(t, model.StateAwaitingConfirmation, e.loop.State())

	_, err := e.loop.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)

	cancel()
	<-done

	_, err = e.loop.RunCycle(context.Background())
	assert.NotErrorIs(t, err, ErrCycleInFlight)
}

func TestRunCycle_UnknownEscalates(t *testing.T) {
	confirm := &scripted{}
	e := newEnv(t, confirm, Options{})
	e.repo.Fail("fetch", errors.New("dial tcp: connection refused"))

	first := e.cycle(t)
	assert.Equal(t, model.Unknown, first.Result)
	assert.Equal(t, model.ActionRetry, first.Action)
	assert.False(t, first.Seeded)
	assert.Contains(t, first.Err, "connection refused")
	assert.Nil(t, e.loop.Link().Baseline)

	second := e.cycle(t)
	assert.Equal(t, model.ActionAlert, second.Action)

	e.repo.Fail("fetch", nil)
	third := e.cycle(t)
	assert.True(t, third.Seeded)
	assert.Equal(t, model.ActionNoOp, third.Action)

	assert.Zero(t, confirm.calls())
}

func TestRunCycle_ProposalDetails(t *testing.T) {
	confirm := &scripted{}
	e := newEnv(t, confirm, Options{})
	e.loop.opts.Describer = e.repo
	e.repo.Summary = vcs.Summary{
		Incoming: []string{"abc1234 fix typo"},
		Changes:  []string{" M a.txt"},
	}
	e.cycle(t)

	e.repo.SetRemote("c2")
	e.cycle(t)

	require.Equal(t, 1, confirm.calls())
	p := confirm.seen[0]
	assert.Len(t, p.ID, 8)
	assert.Equal(t, []string{"incoming: abc1234 fix typo", "local:  M a.txt"}, p.Details)
}

func TestRun_TicksAndNudges(t *testing.T) {
	e := newEnv(t, &scripted{}, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.loop.Run(ctx) }()

	require.Eventually(t, func() bool { return e.rec.count() == 1 }, time.Second, 5*time.Millisecond)

	e.loop.Nudge()
	require.Eventually(t, func() bool { return e.rec.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	status := e.loop.Status()
	assert.Equal(t, uint64(2), status.Cycles)
	require.NotNil(t, status.Last)
	assert.Equal(t, model.InSync, status.Last.Result)
}

func TestRun_InvalidInterval(t *testing.T) {
	e := newEnv(t, &scripted{}, Options{})
	e.loop.opts.Interval = 0
	assert.Error(t, e.loop.Run(context.Background()))
}
