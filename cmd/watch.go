package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repolink/internal/daemon"
	"repolink/internal/logger"
	"repolink/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the link and propose syncs until stopped",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	queue := watch.NewQueueConfirmer()
	var confirm watch.Confirmer = queue
	if isatty.IsTerminal(os.Stdin.Fd()) {
		confirm = watch.Race(watch.NewTerminalConfirmer(os.Stdin, os.Stdout), queue)
	}

	loop := s.newLoop(confirm)

	srv := daemon.NewServer(loop, queue, s.histRepo, cfg.DaemonPort)
	srv.Start()

	if cfg.WatchLocal {
		trigger, err := watch.NewTrigger(s.link.LocalPath, cfg.IgnoreList)
		if err != nil {
			return err
		}
		if err := trigger.Start(loop.Nudge, watch.DefaultTriggerDelay); err != nil {
			logger.Log.Warn("local change trigger disabled", zap.Error(err))
		} else {
			defer trigger.Stop()
		}
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	logger.Log.Info("repolink daemon started",
		zap.String("path", s.link.LocalPath),
		zap.String("remote", s.link.RemoteURL),
		zap.String("branch", s.link.Branch),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("shutting down via stop command")
	case err := <-done:
		if err != nil {
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Log.Error("failed to stop daemon server", zap.Error(err))
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Log.Warn("cycle did not finish before shutdown")
	}

	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
