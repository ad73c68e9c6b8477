package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"repolink/internal/model"
)

type PolicyOptions struct {
	MaxRetries      int
	MaxAuthFailures int
	// HoldPush reports local changes without proposing to push them.
	HoldPush bool
}

// Policy maps a classification to the action that resolves it. It counts
// consecutive Unknown results per link so a persistent failure escalates to
// an alert instead of retrying forever.
type Policy struct {
	mu           sync.Mutex
	opts         PolicyOptions
	retries      int
	authFailures int
}

func NewPolicy(opts PolicyOptions) *Policy {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxAuthFailures < 1 {
		opts.MaxAuthFailures = 1
	}
	return &Policy{opts: opts}
}

func (p *Policy) Decide(result model.Divergence, cause error) model.Proposal {
	p.mu.Lock()
	defer p.mu.Unlock()

	proposal := model.Proposal{Divergence: result}

	if result != model.Unknown {
		p.retries = 0
		p.authFailures = 0
	}

	switch result {
	case model.InSync:
		proposal.Action = model.ActionNoOp
		proposal.Rationale = "local and remote match the baseline"
	case model.LocalAhead:
		if p.opts.HoldPush {
			proposal.Action = model.ActionNoOp
			proposal.Rationale = "local changes since the last sync, pushing is disabled; commit and push by hand"
			break
		}
		proposal.Action = model.ActionProposePush
		proposal.Rationale = "local changes since the last sync, remote unchanged"
	case model.RemoteAhead:
		proposal.Action = model.ActionProposePull
		proposal.Rationale = "remote changes since the last sync, local unchanged"
	case model.Diverged:
		proposal.Action = model.ActionProposeManualMerge
		proposal.Rationale = "both sides changed since the last sync; merge by hand, then confirm"
	default:
		p.retries++
		if errors.Is(cause, ErrAuth) {
			p.authFailures++
		} else {
			p.authFailures = 0
		}

		switch {
		case p.authFailures >= p.opts.MaxAuthFailures:
			proposal.Action = model.ActionAlert
			proposal.Rationale = fmt.Sprintf("credential rejected %d times in a row; re-authenticate", p.authFailures)
		case p.retries > p.opts.MaxRetries:
			proposal.Action = model.ActionAlert
			proposal.Rationale = fmt.Sprintf("state unknown for %d consecutive cycles", p.retries)
		default:
			proposal.Action = model.ActionRetry
			proposal.Rationale = fmt.Sprintf("state unknown, retrying next cycle (%d/%d)", p.retries, p.opts.MaxRetries)
		}

		if cause != nil {
			proposal.Rationale += ": " + cause.Error()
		}
	}

	return proposal
}

// Failures returns the current consecutive failure counters.
func (p *Policy) Failures() (retries, auth int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries, p.authFailures
}
