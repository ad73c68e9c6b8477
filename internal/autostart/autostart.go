// Package autostart registers the watch daemon to start at login.
package autostart

import (
	"context"
	"os/exec"
	"runtime"
)

const serviceName = "repolink"

type AutoStarter interface {
	Install(ctx context.Context, execPath string) error
	Uninstall(ctx context.Context) error
	IsInstalled(ctx context.Context) (bool, error)
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{run: run}
	case "linux":
		return &LinuxAutoStarter{run: run}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(context.Context, string) error {
	return ErrUnsupported
}

func (u *UnsupportedAutoStarter) Uninstall(context.Context) error {
	return ErrUnsupported
}

func (u *UnsupportedAutoStarter) IsInstalled(context.Context) (bool, error) {
	return false, nil
}
