package vcs

import (
	"os"
	"path/filepath"
	apperr "provisioner/internal/error"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHead(t *testing.T) {
	Convey("Head", t, func() {
		dir := t.TempDir()

		Convey("fails outside a repository", func() {
			_, err := Head(dir)
			So(apperr.Is(err, apperr.ConfigError), ShouldBeTrue)
		})

		Convey("returns the checked out commit, from a subdirectory too", func() {
			repo, err := git.PlainInit(dir, false)
			So(err, ShouldBeNil)
			wt, err := repo.Worktree()
			So(err, ShouldBeNil)

			So(os.WriteFile(filepath.Join(dir, "manage.py"), []byte("#!/usr/bin/env python\n"), 0755), ShouldBeNil)
			_, err = wt.Add("manage.py")
			So(err, ShouldBeNil)
			hash, err := wt.Commit("initial", &git.CommitOptions{
				Author: &object.Signature{Name: "Deployer", Email: "deploy@example.com", When: time.Now()},
			})
			So(err, ShouldBeNil)

			head, err := Head(dir)
			So(err, ShouldBeNil)
			So(head, ShouldEqual, hash.String())
			So(len(head), ShouldEqual, 40)

			sub := filepath.Join(dir, "superlists", "settings")
			So(os.MkdirAll(sub, 0755), ShouldBeNil)
			head, err = Head(sub)
			So(err, ShouldBeNil)
			So(head, ShouldEqual, hash.String())
		})
	})
}
