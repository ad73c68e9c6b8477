package autostart

import (
	"context"
	"fmt"
)

const taskName = "RepolinkWatch"

type WindowsAutoStarter struct {
	run runFunc
}

func (w *WindowsAutoStarter) Install(ctx context.Context, execPath string) error {
	out, err := w.run(ctx, "schtasks", "/create",
		"/TN", taskName,
		"/TR", fmt.Sprintf(`"%s" watch`, execPath),
		"/SC", "ONLOGON",
		"/F")
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall(ctx context.Context) error {
	out, err := w.run(ctx, "schtasks", "/DELETE", "/TN", taskName, "/F")
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled(ctx context.Context) (bool, error) {
	if _, err := w.run(ctx, "schtasks", "/Query", "/TN", taskName); err != nil {
		return false, nil
	}

	return true, nil
}
