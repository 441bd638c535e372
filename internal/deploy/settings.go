package deploy

import (
	"context"
	"fmt"
	"provisioner/internal/ssh"
	"strings"

	"github.com/pkg/errors"
)

// SettingsLines is the content of a fresh local settings overlay.
func SettingsLines(c Context) []string {
	return []string{
		"from .common import *",
		fmt.Sprintf("ALLOWED_HOSTS = [%q]", c.URL),
		fmt.Sprintf("STATIC_ROOT = %q", c.StaticDir),
	}
}

// MaterializeSettings writes the local settings overlay unless it already
// exists. An existing file is never touched so manual edits survive. It
// reports whether the file was created.
func MaterializeSettings(ctx context.Context, x ssh.Executor, c Context) (bool, error) {
	exists, err := x.Exists(ctx, c.SettingsPath)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	data := strings.Join(SettingsLines(c), "\n") + "\n"
	if err := x.WriteFile(ctx, c.SettingsPath, []byte(data), 0644); err != nil {
		return false, errors.Wrap(err, "failed to write settings overlay")
	}
	return true, nil
}
