package deploy

import (
	"context"
	apperr "provisioner/internal/error"
	"provisioner/internal/ssh"

	"github.com/pkg/errors"
)

// inEnv runs program from the project directory with the virtualenv active.
func inEnv(c Context, program string) ssh.Command {
	return ssh.Cmd(program).In(c.ProjectDir).With(c.Workon)
}

// InstallDependencies installs the requirements manifest into the
// virtualenv. An installer failure is a DependencyError.
func InstallDependencies(ctx context.Context, x ssh.Executor, c Context) error {
	if err := x.Run(ctx, inEnv(c, "pip install -r "+ssh.Quote(c.Requirements))); err != nil {
		return apperr.New(apperr.DependencyError, "pip install failed", err)
	}
	return nil
}

// CollectStatic gathers static assets into the target's static directory.
func CollectStatic(ctx context.Context, x ssh.Executor, c Context) error {
	return errors.Wrap(x.Run(ctx, inEnv(c, "./manage.py collectstatic --noinput")), "collectstatic failed")
}

// SyncSchema brings the database schema up to date.
func SyncSchema(ctx context.Context, x ssh.Executor, c Context) error {
	return errors.Wrap(x.Run(ctx, inEnv(c, "./manage.py "+c.SchemaCommand+" --noinput")), "schema sync failed")
}
