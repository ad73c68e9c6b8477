package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"repolink/internal/credential"
	"repolink/internal/logger"
	"repolink/internal/model"
)

const (
	DefaultRemoteName = "origin"
	tokenUsername     = "x-access-token"
	maxIncoming       = 20
)

type Options struct {
	Credentials credential.Service
	AuthorName  string
	AuthorEmail string
}

type Git struct {
	repo     *git.Repository
	worktree *git.Worktree
	url      string
	credRef  string
	opts     Options
}

// Open opens the repository at link.LocalPath, cloning link.RemoteURL into it
// when the directory is missing or empty.
func Open(ctx context.Context, link *model.Link, opts Options) (*Git, error) {
	g := &Git{
		url:     link.RemoteURL,
		credRef: link.CredentialRef,
		opts:    opts,
	}

	repo, err := git.PlainOpen(link.LocalPath)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		repo, err = g.clone(ctx, link)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to open repository: %w", err)
	default:
		if err := g.checkRemote(repo); err != nil {
			return nil, err
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	g.repo = repo
	g.worktree = wt

	if err := g.checkBranch(link.Branch); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Git) clone(ctx context.Context, link *model.Link) (*git.Repository, error) {
	entries, err := os.ReadDir(link.LocalPath)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", link.LocalPath, err)
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("%s is not empty: %w", link.LocalPath, ErrNotRepository)
	}

	auth, err := g.auth(ctx)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("cloning repository",
		zap.String("url", link.RemoteURL),
		zap.String("branch", link.Branch),
		zap.String("path", link.LocalPath))

	repo, err := git.PlainCloneContext(ctx, link.LocalPath, false, &git.CloneOptions{
		URL:           link.RemoteURL,
		RemoteName:    DefaultRemoteName,
		ReferenceName: plumbing.NewBranchReferenceName(link.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		if !existed {
			_ = os.RemoveAll(link.LocalPath)
		}
		return nil, classify("clone", err, true)
	}

	return repo, nil
}

func (g *Git) checkRemote(repo *git.Repository) error {
	remote, err := repo.Remote(DefaultRemoteName)
	if errors.Is(err, git.ErrRemoteNotFound) {
		_, err = repo.CreateRemote(&config.RemoteConfig{
			Name: DefaultRemoteName,
			URLs: []string{g.url},
		})
		if err != nil {
			return fmt.Errorf("failed to add remote: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read remote: %w", err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != g.url {
		return fmt.Errorf("%v != %s: %w", urls, g.url, ErrRemoteMismatch)
	}

	return nil
}

func (g *Git) checkBranch(branch string) error {
	head, err := g.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}

	want := plumbing.NewBranchReferenceName(branch)
	if head.Type() == plumbing.SymbolicReference && head.Target() != want {
		return fmt.Errorf("%s checked out, want %s: %w", head.Target().Short(), branch, ErrBranchMismatch)
	}

	return nil
}

func (g *Git) auth(ctx context.Context) (transport.AuthMethod, error) {
	if g.credRef == "" || g.opts.Credentials == nil {
		return nil, nil
	}
	if !strings.HasPrefix(g.url, "https://") && !strings.HasPrefix(g.url, "http://") {
		return nil, nil
	}

	token, err := g.opts.Credentials.Token(ctx, g.credRef)
	if err != nil {
		return nil, fmt.Errorf("credential %q: %w: %w", g.credRef, ErrAuthRequired, err)
	}

	return &githttp.BasicAuth{Username: tokenUsername, Password: token}, nil
}

func (g *Git) FetchHead(ctx context.Context, branch string) (string, error) {
	auth, err := g.auth(ctx)
	if err != nil {
		return "", err
	}

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, DefaultRemoteName, branch))
	err = g.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: DefaultRemoteName,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", classify("fetch", err, true)
	}

	ref, err := g.repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemoteName, branch), true)
	if err != nil {
		return "", classify("resolve remote head", err, false)
	}

	return ref.Hash().String(), nil
}

func (g *Git) CurrentHead(_ context.Context) (string, error) {
	head, err := g.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", classify("resolve HEAD", err, false)
	}

	return head.Hash().String(), nil
}

// Pull fast-forwards the checked-out branch to the remote head. Local edits
// are kept as long as none of the incoming changes touches them; otherwise
// nothing is changed and ErrConflict is returned.
func (g *Git) Pull(ctx context.Context, branch string) error {
	remote, err := g.FetchHead(ctx, branch)
	if err != nil {
		return err
	}
	target := plumbing.NewHash(remote)

	head, err := g.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		err = g.worktree.Reset(&git.ResetOptions{Commit: target, Mode: git.MergeReset})
		return classify("pull", err, false)
	}
	if err != nil {
		return classify("pull", err, false)
	}
	if head.Hash() == target {
		return nil
	}

	from, err := g.repo.CommitObject(head.Hash())
	if err != nil {
		return classify("pull", err, false)
	}
	to, err := g.repo.CommitObject(target)
	if err != nil {
		return classify("pull", err, false)
	}

	if behind, err := to.IsAncestor(from); err != nil {
		return classify("pull", err, false)
	} else if behind {
		return nil
	}
	if ff, err := from.IsAncestor(to); err != nil {
		return classify("pull", err, false)
	} else if !ff {
		return wrap("pull", ErrNotFastForward, fmt.Errorf("%s is not an ancestor of %s", head.Hash(), target))
	}

	paths, err := changedPaths(ctx, from, to)
	if err != nil {
		return classify("pull", err, false)
	}

	status, err := g.worktree.Status()
	if err != nil {
		return classify("status", err, false)
	}
	if overlap := dirtyOverlap(status, paths); len(overlap) > 0 {
		return wrap("pull", ErrConflict, fmt.Errorf("local edits to %s", strings.Join(overlap, ", ")))
	}

	// Only the incoming paths are checked out, which leaves unrelated local
	// edits in place the way a fast-forward merge does.
	opts := &git.ResetOptions{Commit: target, Mode: git.HardReset, Files: paths}
	if len(paths) == 0 {
		opts = &git.ResetOptions{Commit: target, Mode: git.SoftReset}
	}
	if err := g.worktree.Reset(opts); err != nil {
		return classify("pull", err, false)
	}

	logger.Log.Debug("fast-forwarded",
		zap.String("from", head.Hash().String()[:7]),
		zap.String("to", remote[:7]),
		zap.Int("paths", len(paths)))

	return nil
}

func changedPaths(ctx context.Context, from, to *object.Commit) ([]string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.DiffContext(ctx, toTree)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		for _, name := range []string{c.From.Name, c.To.Name} {
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}

	paths := make([]string, 0, len(seen))
	for name := range seen {
		paths = append(paths, name)
	}
	sort.Strings(paths)

	return paths, nil
}

// dirtyOverlap returns the incoming paths that collide with a modified,
// staged or untracked local path, including a file standing where the other
// side has a directory.
func dirtyOverlap(status git.Status, paths []string) []string {
	var overlap []string
	for _, p := range paths {
		for name, s := range status {
			if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
				continue
			}
			if name == p || strings.HasPrefix(name, p+"/") || strings.HasPrefix(p, name+"/") {
				overlap = append(overlap, p)
				break
			}
		}
	}
	return overlap
}

func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	status, err := g.worktree.Status()
	if err != nil {
		return "", classify("status", err, false)
	}
	if status.IsClean() {
		return "", ErrNothingToCommit
	}

	if err := g.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", classify("add", err, false)
	}

	hash, err := g.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.opts.AuthorName,
			Email: g.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", classify("commit", err, false)
	}

	return hash.String(), nil
}

func (g *Git) Push(ctx context.Context, branch string) error {
	auth, err := g.auth(ctx)
	if err != nil {
		return err
	}

	ref := plumbing.NewBranchReferenceName(branch)
	err = g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: DefaultRemoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify("push", err, true)
	}

	return nil
}

// Reset moves the checked-out branch back to commit. An empty commit means
// the branch had no commits and its reference is removed.
func (g *Git) Reset(_ context.Context, commit string, mode ResetMode) error {
	if commit == "" {
		head, err := g.repo.Reference(plumbing.HEAD, false)
		if err != nil {
			return classify("reset", err, false)
		}
		if err := g.repo.Storer.RemoveReference(head.Target()); err != nil {
			return classify("reset", err, false)
		}
		return nil
	}

	gitMode := git.SoftReset
	if mode == ResetMerge {
		gitMode = git.MergeReset
	}

	err := g.worktree.Reset(&git.ResetOptions{
		Commit: plumbing.NewHash(commit),
		Mode:   gitMode,
	})
	return classify("reset", err, false)
}

func (g *Git) Clean(_ context.Context) (bool, error) {
	status, err := g.worktree.Status()
	if err != nil {
		return false, classify("status", err, false)
	}

	return status.IsClean(), nil
}

// Pending lists the subjects of remote commits missing locally and the
// locally changed paths, as short human-readable lines.
func (g *Git) Pending(ctx context.Context, branch string) (Summary, error) {
	var summary Summary

	status, err := g.worktree.Status()
	if err != nil {
		return summary, classify("status", err, false)
	}
	for path, s := range status {
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		summary.Changes = append(summary.Changes, fmt.Sprintf("%c%c %s", s.Staging, s.Worktree, path))
	}
	sort.Slice(summary.Changes, func(i, j int) bool {
		return summary.Changes[i][3:] < summary.Changes[j][3:]
	})

	remoteRef, err := g.repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemoteName, branch), true)
	if err != nil {
		return summary, nil
	}

	stop := plumbing.ZeroHash
	if head, err := g.repo.Head(); err == nil {
		if head.Hash() == remoteRef.Hash() {
			return summary, nil
		}
		stop = g.mergeBase(head.Hash(), remoteRef.Hash())
	}

	iter, err := g.repo.Log(&git.LogOptions{From: remoteRef.Hash()})
	if err != nil {
		return summary, classify("log", err, false)
	}
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		if ctx.Err() != nil || c.Hash == stop || len(summary.Incoming) >= maxIncoming {
			return storer.ErrStop
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		summary.Incoming = append(summary.Incoming, fmt.Sprintf("%s %s", c.Hash.String()[:7], subject))
		return nil
	})
	if err != nil {
		return summary, classify("log", err, false)
	}

	return summary, nil
}

func (g *Git) mergeBase(a, b plumbing.Hash) plumbing.Hash {
	ca, err := g.repo.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash
	}
	cb, err := g.repo.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash
	}

	bases, err := ca.MergeBase(cb)
	if err != nil || len(bases) == 0 {
		return plumbing.ZeroHash
	}

	return bases[0].Hash
}
