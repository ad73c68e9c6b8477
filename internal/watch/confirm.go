package watch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"repolink/internal/model"
)

var ErrProposalNotFound = errors.New("no pending proposal with this id")

type Confirmer interface {
	Confirm(ctx context.Context, proposal model.Proposal) (model.Decision, error)
}

type ConfirmerFunc func(ctx context.Context, proposal model.Proposal) (model.Decision, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, proposal model.Proposal) (model.Decision, error) {
	return f(ctx, proposal)
}

// TerminalConfirmer prompts on out and reads the answer from in. A single
// reader goroutine owns in, so an abandoned prompt does not leak readers.
type TerminalConfirmer struct {
	out   io.Writer
	in    io.Reader
	once  sync.Once
	lines chan inputLine
	mu    sync.Mutex
}

type inputLine struct {
	text string
	at   time.Time
}

func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{
		in:    in,
		out:   out,
		lines: make(chan inputLine),
	}
}

func (t *TerminalConfirmer) Confirm(ctx context.Context, p model.Proposal) (model.Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	asked := time.Now()
	t.once.Do(func() { go t.read() })

	_, _ = fmt.Fprintf(t.out, "\n[%s] %s: %s\n", p.ID, p.Divergence, p.Rationale)
	for _, d := range p.Details {
		_, _ = fmt.Fprintf(t.out, "  %s\n", d)
	}
	_, _ = fmt.Fprintf(t.out, "%s? [y/N]: ", prompt(p.Action))

	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(t.out)
			return "", ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				return "", io.EOF
			}
			// Answers typed after an earlier prompt gave up are dropped.
			if line.at.Before(asked) {
				continue
			}
			if accepted(line.text) {
				return model.DecisionConfirmed, nil
			}
			return model.DecisionRejected, nil
		}
	}
}

func (t *TerminalConfirmer) read() {
	defer close(t.lines)

	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		t.lines <- inputLine{text: scanner.Text(), at: time.Now()}
	}
}

func accepted(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "o", "oui":
		return true
	default:
		return false
	}
}

func prompt(action model.Action) string {
	switch action {
	case model.ActionProposePush:
		return "Commit and push local changes"
	case model.ActionProposePull:
		return "Pull remote changes"
	case model.ActionProposeManualMerge:
		return "Have you merged both sides by hand"
	default:
		return string(action)
	}
}

type pendingProposal struct {
	proposal model.Proposal
	decision chan model.Decision
}

// QueueConfirmer parks proposals until Resolve is called for them, typically
// from the daemon API.
type QueueConfirmer struct {
	mu      sync.Mutex
	pending map[string]*pendingProposal
}

func NewQueueConfirmer() *QueueConfirmer {
	return &QueueConfirmer{pending: make(map[string]*pendingProposal)}
}

func (q *QueueConfirmer) Confirm(ctx context.Context, p model.Proposal) (model.Decision, error) {
	entry := &pendingProposal{
		proposal: p,
		decision: make(chan model.Decision, 1),
	}

	q.mu.Lock()
	q.pending[p.ID] = entry
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.pending, p.ID)
		q.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case d := <-entry.decision:
		return d, nil
	}
}

func (q *QueueConfirmer) Resolve(id string, decision model.Decision) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	delete(q.pending, id)
	entry.decision <- decision
	return nil
}

func (q *QueueConfirmer) Pending() []model.Proposal {
	q.mu.Lock()
	defer q.mu.Unlock()

	proposals := make([]model.Proposal, 0, len(q.pending))
	for _, entry := range q.pending {
		proposals = append(proposals, entry.proposal)
	}
	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].CreatedAt.Before(proposals[j].CreatedAt)
	})
	return proposals
}

// Race asks every confirmer at once and returns the first answer. The others
// are cancelled.
func Race(confirmers ...Confirmer) Confirmer {
	return ConfirmerFunc(func(ctx context.Context, p model.Proposal) (model.Decision, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type answer struct {
			decision model.Decision
			err      error
		}
		answers := make(chan answer, len(confirmers))

		for _, c := range confirmers {
			go func(c Confirmer) {
				d, err := c.Confirm(ctx, p)
				answers <- answer{decision: d, err: err}
			}(c)
		}

		var errs []error
		for range confirmers {
			a := <-answers
			if a.err == nil {
				return a.decision, nil
			}
			errs = append(errs, a.err)
		}

		return "", errors.Join(errs...)
	})
}
