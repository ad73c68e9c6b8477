package vcs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Sentinel errors returned by Repository implementations. Callers check them
// with errors.Is to tell network, credential and conflict failures apart.
var (
	ErrAuthRequired    = errors.New("authentication required")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrNetwork         = errors.New("network failure")
	ErrNotFastForward  = errors.New("not a fast-forward")
	ErrConflict        = errors.New("working tree conflict")
	ErrNotRepository   = errors.New("not a git repository")
	ErrRemoteNotFound  = errors.New("remote repository not found")
	ErrRemoteMismatch  = errors.New("origin points to a different remote")
	ErrBranchMissing   = errors.New("branch does not exist")
	ErrBranchMismatch  = errors.New("a different branch is checked out")
	ErrNothingToCommit = errors.New("nothing to commit")
)

// IsAuth reports whether err means the credential must be renewed rather
// than the operation retried.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrAuthFailed)
}

func wrap(op string, sentinel, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}

// classify maps go-git and transport errors onto the sentinels above. remote
// marks operations that talk to the network; unknown failures there are
// treated as transient.
func classify(op string, err error, remote bool) error {
	if err == nil {
		return nil
	}

	var (
		netErr net.Error
		urlErr *url.Error
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrAuthFailed):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return wrap(op, ErrAuthRequired, err)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return wrap(op, ErrAuthFailed, err)
	case errors.Is(err, git.ErrNonFastForwardUpdate), errors.Is(err, git.ErrForceNeeded):
		return wrap(op, ErrNotFastForward, err)
	case errors.Is(err, git.ErrUnstagedChanges), errors.Is(err, git.ErrWorktreeNotClean):
		return wrap(op, ErrConflict, err)
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, git.ErrRemoteNotFound):
		return wrap(op, ErrRemoteNotFound, err)
	case errors.Is(err, plumbing.ErrReferenceNotFound), errors.Is(err, git.NoMatchingRefSpecError{}):
		return wrap(op, ErrBranchMissing, err)
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return wrap(op, ErrNetwork, err)
	// Rejected pushes only surface as text. Typed errors are matched first,
	// some of them panic in Error() when built without their fields.
	case strings.Contains(err.Error(), "non-fast-forward"):
		return wrap(op, ErrNotFastForward, err)
	case remote:
		return wrap(op, ErrNetwork, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
