package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"repolink/internal/logger"
	"repolink/internal/pipeline"
)

const (
	DefaultTriggerDelay = 2 * time.Second
	triggerBuffer       = 256
)

// Trigger watches the local tree and calls a nudge function once a burst of
// edits has settled. Paths matching the ignore list never fire it, so the
// repository's own .git writes do not cause cycles.
type Trigger struct {
	fw     *fsnotify.Watcher
	root   string
	ignore []string
	pathCh chan string
	doneCh chan struct{}
}

func NewTrigger(root string, ignore []string) (*Trigger, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if !slices.Contains(ignore, ".git") {
		ignore = append(slices.Clone(ignore), ".git")
	}

	return &Trigger{
		fw:     fw,
		root:   absRoot,
		ignore: ignore,
		pathCh: make(chan string, triggerBuffer),
		doneCh: make(chan struct{}),
	}, nil
}

func (t *Trigger) Start(nudge func(), delay time.Duration) error {
	if _, err := os.Stat(t.root); err != nil {
		return fmt.Errorf("source directory not found: %w", err)
	}

	if err := t.addRecursive(t.root); err != nil {
		return err
	}

	signals := pipeline.Debounce(pipeline.Filter(t.pathCh, t.ignore), delay)

	go t.run()
	go func() {
		for range signals {
			logger.Log.Debug("local change settled, nudging")
			nudge()
		}
	}()

	logger.Log.Info("trigger started", zap.String("dir", t.root))
	return nil
}

func (t *Trigger) Stop() {
	close(t.doneCh)
	_ = t.fw.Close()
}

func (t *Trigger) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}
		if path != t.root && pipeline.ShouldIgnore(t.rel(path), t.ignore) {
			return fs.SkipDir
		}

		if err := t.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		logger.Log.Debug("watching directory", zap.String("path", path))

		return nil
	})
}

func (t *Trigger) run() {
	defer close(t.pathCh)

	for {
		select {
		case <-t.doneCh:
			logger.Log.Info("trigger stopping")
			return

		case ev, ok := <-t.fw.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}

			rel := t.rel(ev.Name)

			if ev.Op.Has(fsnotify.Create) && !pipeline.ShouldIgnore(rel, t.ignore) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := t.addRecursive(ev.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", ev.Name),
							zap.Error(err))
					}
				}
			}

			select {
			case t.pathCh <- rel:
			default:
				logger.Log.Debug("trigger buffer full, dropping event", zap.String("path", rel))
			}

		case err, ok := <-t.fw.Errors:
			if !ok {
				return
			}
			logger.Log.Error("watcher error", zap.Error(err))
		}
	}
}

func (t *Trigger) rel(path string) string {
	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		return path
	}
	return rel
}
