package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"repolink/internal/logger"
	"repolink/internal/model"
	"repolink/internal/pipeline"
	"repolink/internal/vcs"
)

const gitDir = ".git"

type RemoteHeads interface {
	FetchHead(ctx context.Context, branch string) (string, error)
}

type SnapshotOptions struct {
	Ignore      []string
	SettleScans int
	SettleDelay time.Duration
	// FS opens the tree rooted at a local path. Defaults to osfs.
	FS func(root string) billy.Filesystem
}

type Snapshotter struct {
	remote RemoteHeads
	opts   SnapshotOptions
	now    func() time.Time
}

func NewSnapshotter(remote RemoteHeads, opts SnapshotOptions) *Snapshotter {
	// Repository metadata changes on every fetch and is never part of the tree.
	if !slices.Contains(opts.Ignore, gitDir) {
		opts.Ignore = append(slices.Clone(opts.Ignore), gitDir)
	}
	if opts.FS == nil {
		opts.FS = func(root string) billy.Filesystem {
			return osfs.New(root)
		}
	}

	return &Snapshotter{
		remote: remote,
		opts:   opts,
		now:    time.Now,
	}
}

// Capture is the joined result of snapshotting both sides of a link. A nil
// snapshot always comes with its error set.
type Capture struct {
	Local     *model.Snapshot
	Remote    *model.Snapshot
	LocalErr  error
	RemoteErr error
}

func (c Capture) Err() error {
	return errors.Join(c.LocalErr, c.RemoteErr)
}

// Capture snapshots local and remote concurrently and waits for both.
func (s *Snapshotter) Capture(ctx context.Context, link *model.Link) Capture {
	var (
		c  Capture
		wg sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, err := s.Local(ctx, link)
		if err != nil {
			c.LocalErr = err
			return
		}
		c.Local = &snap
	}()
	go func() {
		defer wg.Done()
		snap, err := s.Remote(ctx, link)
		if err != nil {
			c.RemoteErr = err
			return
		}
		c.Remote = &snap
	}()
	wg.Wait()

	return c
}

func (s *Snapshotter) Local(ctx context.Context, link *model.Link) (model.Snapshot, error) {
	fs := s.opts.FS(link.LocalPath)

	sum, err := s.fingerprint(ctx, fs)
	if err != nil {
		return model.Snapshot{}, err
	}

	for i := 0; i < s.opts.SettleScans; i++ {
		select {
		case <-ctx.Done():
			return model.Snapshot{}, ctx.Err()
		case <-time.After(s.opts.SettleDelay):
		}

		again, err := s.fingerprint(ctx, fs)
		if err != nil {
			return model.Snapshot{}, err
		}
		if again == sum {
			break
		}

		logger.Log.Debug("local tree changed during scan",
			zap.String("path", link.LocalPath),
			zap.Int("scan", i+1))

		if i == s.opts.SettleScans-1 {
			return model.Snapshot{}, fmt.Errorf("%w: %w", ErrIO, ErrUnsettled)
		}
		sum = again
	}

	return model.Snapshot{
		Source:   model.SourceLocal,
		Identity: sum,
		Branch:   link.Branch,
		TakenAt:  s.now(),
	}, nil
}

func (s *Snapshotter) Remote(ctx context.Context, link *model.Link) (model.Snapshot, error) {
	head, err := s.remote.FetchHead(ctx, link.Branch)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return model.Snapshot{}, ctx.Err()
		case vcs.IsAuth(err):
			return model.Snapshot{}, fmt.Errorf("%w: %w", ErrAuth, err)
		default:
			return model.Snapshot{}, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
	}

	return model.Snapshot{
		Source:   model.SourceRemote,
		Identity: head,
		Branch:   link.Branch,
		TakenAt:  s.now(),
	}, nil
}

type treeEntry struct {
	path string
	line string
}

// fingerprint hashes the sorted (path, size, content hash) list of the tree.
// Empty directories do not contribute, matching what git can track.
func (s *Snapshotter) fingerprint(ctx context.Context, fs billy.Filesystem) (string, error) {
	var entries []treeEntry

	var walk func(dir string) error
	walk = func(dir string) error {
		infos, err := fs.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("%w: failed to read %s: %w", ErrIO, dir, err)
		}

		for _, info := range infos {
			if err := ctx.Err(); err != nil {
				return err
			}

			rel := path.Join(dir, info.Name())
			if dir == "" || dir == "." {
				rel = info.Name()
			}
			if pipeline.ShouldIgnore(rel, s.opts.Ignore) {
				continue
			}

			switch {
			case info.IsDir():
				if err := walk(rel); err != nil {
					return err
				}
			case info.Mode()&os.ModeSymlink != 0:
				target, err := readlink(fs, rel)
				if err != nil {
					return err
				}
				entries = append(entries, treeEntry{path: rel, line: fmt.Sprintf("L\x00%s\x00%s\n", rel, target)})
			case info.Mode().IsRegular():
				sum, err := checksum(fs, rel)
				if err != nil {
					return err
				}
				entries = append(entries, treeEntry{path: rel, line: fmt.Sprintf("F\x00%s\x00%d\x00%s\n", rel, info.Size(), sum)})
			}
		}

		return nil
	}

	if err := walk(""); err != nil {
		return "", err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].path < entries[j].path
	})

	h := sha256.New()
	for _, e := range entries {
		_, _ = io.WriteString(h, e.line)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func checksum(fs billy.Filesystem, name string) (string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %w", ErrIO, name, err)
	}

	defer func(f billy.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", ErrIO, name, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func readlink(fs billy.Filesystem, name string) (string, error) {
	target, err := fs.Readlink(name)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read link %s: %w", ErrIO, name, err)
	}
	return target, nil
}
