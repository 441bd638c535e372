// Package vcs reads the state of the deployer's own checkout.
package vcs

import (
	apperr "provisioner/internal/error"

	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
)

// Head returns the full hash of the commit checked out in the repository
// containing dir. Parent directories are searched for the .git directory.
func Head(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", apperr.Newf(apperr.ConfigError, "%s is not inside a git repository", dir)
		}
		return "", errors.Wrapf(err, "failed to open repository at %s", dir)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD")
	}
	return ref.Hash().String(), nil
}
