package deploy

import (
	"context"
	"path"
	apperr "provisioner/internal/error"
	"provisioner/internal/ssh"
	"regexp"

	"github.com/pkg/errors"
)

var commitPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// SyncSource leaves the project directory as a clean checkout of commit:
// fetch when a clone exists, clone otherwise, then hard reset. Any local
// modification on the remote side is discarded.
func SyncSource(ctx context.Context, x ssh.Executor, c Context, commit string) error {
	if !commitPattern.MatchString(commit) {
		return apperr.Newf(apperr.ValidationError, "invalid commit hash %q", commit)
	}

	cloned, err := x.Exists(ctx, path.Join(c.ProjectDir, ".git"))
	if err != nil {
		return err
	}

	if cloned {
		if err := x.Run(ctx, ssh.Cmd("git fetch").In(c.ProjectDir)); err != nil {
			return errors.Wrap(err, "git fetch failed")
		}
	} else {
		if err := x.Run(ctx, ssh.Cmd("mkdir -p "+ssh.Quote(c.ProjectDir))); err != nil {
			return errors.Wrap(err, "failed to create project directory")
		}
		if err := x.Run(ctx, ssh.Cmd("git clone "+ssh.Quote(c.RepoURL)+" .").In(c.ProjectDir)); err != nil {
			return errors.Wrap(err, "git clone failed")
		}
	}

	if err := x.Run(ctx, ssh.Cmd("git reset --hard "+commit).In(c.ProjectDir)); err != nil {
		return errors.Wrap(err, "git reset failed")
	}
	return nil
}
