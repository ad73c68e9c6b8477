package autostart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
	fail  string
}

func (r *recorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, call)
	if r.fail != "" && strings.Contains(call, r.fail) {
		return []byte("boom"), errors.New("exit status 1")
	}
	return nil, nil
}

func TestLinux_InstallUninstall(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	l := &LinuxAutoStarter{run: rec.run, dir: filepath.Join(t.TempDir(), "systemd", "user")}

	installed, err := l.IsInstalled(ctx)
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, l.Install(ctx, "/usr/local/bin/repolink"))

	unit, err := os.ReadFile(filepath.Join(l.dir, "repolink.service"))
	require.NoError(t, err)
	assert.Contains(t, string(unit), "ExecStart=/usr/local/bin/repolink watch")
	assert.Contains(t, string(unit), "[Service]")
	assert.Equal(t, []string{
		"systemctl --user daemon-reload",
		"systemctl --user enable --now repolink.service",
	}, rec.calls)

	installed, err = l.IsInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, installed)

	require.NoError(t, l.Uninstall(ctx))
	installed, err = l.IsInstalled(ctx)
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, l.Uninstall(ctx), "uninstalling twice is fine")
}

func TestLinux_InstallCommandFails(t *testing.T) {
	rec := &recorder{fail: "enable"}
	l := &LinuxAutoStarter{run: rec.run, dir: t.TempDir()}

	err := l.Install(context.Background(), "/bin/repolink")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestWindows(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	w := &WindowsAutoStarter{run: rec.run}

	require.NoError(t, w.Install(ctx, `C:\bin\repolink.exe`))
	assert.Contains(t, rec.calls[0], `/TR "C:\bin\repolink.exe" watch`)

	installed, err := w.IsInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, installed)

	rec.fail = "/Query"
	installed, err = w.IsInstalled(ctx)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestUnsupported(t *testing.T) {
	u := &UnsupportedAutoStarter{}
	assert.ErrorIs(t, u.Install(context.Background(), "/bin/repolink"), ErrUnsupported)
}
