package autostart

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/adrg/xdg"

	"repolink/internal/util"
)

const unitTemplate = `[Unit]
Description=repolink watch daemon
Wants=network-online.target
After=network-online.target

[Service]
ExecStart={{.ExecPath}} watch
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

type LinuxAutoStarter struct {
	run runFunc
	// dir overrides the systemd user unit directory.
	dir string
}

func (l *LinuxAutoStarter) unitName() string {
	return serviceName + ".service"
}

func (l *LinuxAutoStarter) unitPath() string {
	dir := l.dir
	if dir == "" {
		dir = filepath.Join(xdg.ConfigHome, "systemd", "user")
	}
	return filepath.Join(dir, l.unitName())
}

func renderUnit(execPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, map[string]string{"ExecPath": execPath}); err != nil {
		return nil, fmt.Errorf("failed to render service file: %w", err)
	}
	return buf.Bytes(), nil
}

func (l *LinuxAutoStarter) Install(ctx context.Context, execPath string) error {
	unit, err := renderUnit(execPath)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(l.unitPath(), bytes.NewReader(unit)); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", "--now", l.unitName()},
	}

	for _, args := range cmds {
		if out, err := l.run(ctx, args[0], args[1:]...); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall(ctx context.Context) error {
	_, _ = l.run(ctx, "systemctl", "--user", "disable", "--now", l.unitName())

	if err := util.RemoveIfExists(l.unitPath()); err != nil {
		return fmt.Errorf("failed to remove service file: %w", err)
	}

	_, _ = l.run(ctx, "systemctl", "--user", "daemon-reload")
	return nil
}

func (l *LinuxAutoStarter) IsInstalled(context.Context) (bool, error) {
	_, err := os.Stat(l.unitPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
