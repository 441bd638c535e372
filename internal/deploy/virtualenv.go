package deploy

import (
	"bytes"
	"context"
	"fmt"
	apperr "provisioner/internal/error"
	"provisioner/internal/ssh"

	"github.com/pkg/errors"
)

const secretKeyExport = "export SECRET_KEY="

// SecretFunc returns a freshly generated secret key.
type SecretFunc func() (string, error)

// EnsureVirtualEnv makes sure the target's virtualenv exists and that its
// postactivate hook exports the settings module and a secret key. The hook
// is the marker: once it exports SECRET_KEY nothing is created or
// regenerated again. It reports whether anything changed.
func EnsureVirtualEnv(ctx context.Context, x ssh.Executor, c Context, newSecret SecretFunc) (bool, error) {
	hookExists, err := x.Exists(ctx, c.HookPath)
	if err != nil {
		return false, err
	}

	if hookExists {
		hook, err := x.ReadFile(ctx, c.HookPath)
		if err != nil {
			return false, err
		}
		if hasSecretKey(hook) {
			return false, nil
		}
	} else {
		// mkvirtualenv -a refuses a project directory that does not exist.
		if err := x.Run(ctx, ssh.Cmd("mkdir -p "+ssh.Quote(c.ProjectDir))); err != nil {
			return false, errors.Wrap(err, "failed to create project directory")
		}
		mk := fmt.Sprintf("mkvirtualenv -p %s -a %s %s",
			ssh.Quote(c.Python), ssh.Quote(c.ProjectDir), ssh.Quote(c.AppName))
		if err := x.Run(ctx, ssh.Cmd(mk)); err != nil {
			return false, errors.Wrap(err, "failed to create virtualenv")
		}
	}

	secret, err := newSecret()
	if err != nil {
		return false, apperr.New(apperr.ConfigError, "failed to generate secret key", err)
	}
	err = x.Append(ctx, c.HookPath,
		"export DJANGO_SETTINGS_MODULE="+c.SettingsModule,
		secretKeyExport+ssh.Quote(secret),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to write activation hook")
	}
	return true, nil
}

func hasSecretKey(hook []byte) bool {
	for _, line := range bytes.Split(hook, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte(secretKeyExport)) {
			return true
		}
	}
	return false
}
