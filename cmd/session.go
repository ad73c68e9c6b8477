package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"repolink/internal/config"
	"repolink/internal/credential"
	"repolink/internal/logger"
	"repolink/internal/model"
	"repolink/internal/reconcile"
	"repolink/internal/repository"
	"repolink/internal/vcs"
	"repolink/internal/watch"
)

type session struct {
	link     model.Link
	repo     *vcs.Git
	snap     *reconcile.Snapshotter
	policy   *reconcile.Policy
	exec     *reconcile.Executor
	linkRepo *repository.LinkRepository
	histRepo *repository.HistoryRepository
}

func tokenDir() string {
	return filepath.Join(config.Dir(), "tokens")
}

func credentials() credential.Chain {
	return credential.Chain{
		credential.NewEnvService(),
		credential.NewFileStore(tokenDir()),
		credential.NewKeyringStore(),
	}
}

func newSession(ctx context.Context) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config, run 'repolink init': %w", err)
	}

	localPath, err := filepath.Abs(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	link := model.Link{
		LocalPath:     localPath,
		RemoteURL:     cfg.RemoteURL,
		Branch:        cfg.Branch,
		CredentialRef: cfg.CredentialRef,
	}

	linkRepo := repository.NewLinkRepository()
	if cfg.PersistBaseline {
		baseline, err := linkRepo.LoadBaseline(ctx, &link)
		if err != nil {
			logger.Log.Warn("ignoring saved baseline", zap.Error(err))
		}
		link.Baseline = baseline
	}

	repo, err := vcs.Open(ctx, &link, vcs.Options{
		Credentials: credentials(),
		AuthorName:  cfg.AuthorName,
		AuthorEmail: cfg.AuthorEmail,
	})
	if err != nil {
		return nil, err
	}

	snap := reconcile.NewSnapshotter(repo, reconcile.SnapshotOptions{
		Ignore:      cfg.IgnoreList,
		SettleScans: cfg.SettleScans,
		SettleDelay: cfg.SettleDelay,
	})

	return &session{
		link: link,
		repo: repo,
		snap: snap,
		policy: reconcile.NewPolicy(reconcile.PolicyOptions{
			MaxRetries:      cfg.MaxRetries,
			MaxAuthFailures: cfg.MaxAuthFailures,
			HoldPush:        !cfg.ProposePush,
		}),
		exec:     reconcile.NewExecutor(repo, snap, reconcile.ExecutorOptions{}),
		linkRepo: linkRepo,
		histRepo: repository.NewHistoryRepository(localPath),
	}, nil
}

func (s *session) newLoop(confirm watch.Confirmer) *watch.Loop {
	opts := watch.Options{
		Interval:       cfg.Interval,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Recorder:       s.histRepo,
		Describer:      s.repo,
	}
	if cfg.PersistBaseline {
		opts.Store = s.linkRepo
	}

	return watch.NewLoop(s.link, s.snap, s.policy, s.exec, confirm, opts)
}
