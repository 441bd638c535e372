package deploy

import (
	"context"
	"errors"
	"path"
	apperr "provisioner/internal/error"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	. "github.com/smartystreets/goconvey/convey"
)

const (
	commitA = "0123456789abcdef0123456789abcdef01234567"
	commitB = "89abcdef0123456789abcdef0123456789abcdef"
)

func mustBind() Context {
	c, err := Bind(fooTarget())
	if err != nil {
		panic(err)
	}
	return c
}

func countingSecrets(n *int) SecretFunc {
	return func() (string, error) {
		*n++
		return strings.Repeat("k", 49) + string(rune('a'+*n)), nil
	}
}

func TestEnsureVirtualEnv(t *testing.T) {
	Convey("EnsureVirtualEnv", t, func() {
		ctx := context.Background()
		c := mustBind()
		host := newFakeHost(c)
		generated := 0
		secrets := countingSecrets(&generated)

		Convey("creates the env and writes the hook on a fresh host", func() {
			changed, err := EnsureVirtualEnv(ctx, host, c, secrets)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)
			So(host.ran("mkvirtualenv -p python3 -a /home/deploy/webapps/foo foo"), ShouldBeTrue)
			So(generated, ShouldEqual, 1)
			So(host.files[c.HookPath], ShouldEqual,
				"export DJANGO_SETTINGS_MODULE=superlists.settings.local\n"+
					"export SECRET_KEY="+strings.Repeat("k", 49)+"b\n")

			Convey("and a second run changes nothing", func() {
				before := host.snapshot()
				runs := len(host.commands)

				changed, err := EnsureVirtualEnv(ctx, host, c, secrets)
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)
				So(generated, ShouldEqual, 1)
				So(len(host.commands), ShouldEqual, runs)
				So(cmp.Diff(before, host.snapshot()), ShouldEqual, "")
			})
		})

		Convey("only appends to a hook that lacks the secret", func() {
			host.files[c.HookPath] = "# virtualenvwrapper hook\n"
			changed, err := EnsureVirtualEnv(ctx, host, c, secrets)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)
			So(host.ran("mkvirtualenv"), ShouldBeFalse)
			So(host.files[c.HookPath], ShouldStartWith, "# virtualenvwrapper hook\nexport DJANGO_SETTINGS_MODULE=")
		})

		Convey("aborts when mkvirtualenv fails", func() {
			host.failWith("mkvirtualenv", 1, "mkvirtualenv: command not found")
			_, err := EnsureVirtualEnv(ctx, host, c, secrets)
			So(apperr.Is(err, apperr.RemoteCommandError), ShouldBeTrue)
			So(generated, ShouldEqual, 0)
			_, hook := host.files[c.HookPath]
			So(hook, ShouldBeFalse)
		})

		Convey("reports a broken secret source", func() {
			_, err := EnsureVirtualEnv(ctx, host, c, func() (string, error) {
				return "", errors.New("entropy exhausted")
			})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSyncSource(t *testing.T) {
	Convey("SyncSource converges to the given commit", t, func() {
		ctx := context.Background()
		c := mustBind()
		host := newFakeHost(c)
		gitDir := path.Join(c.ProjectDir, ".git")

		Convey("from an absent checkout", func() {
			So(SyncSource(ctx, host, c, commitA), ShouldBeNil)
			So(host.clones, ShouldEqual, 1)
			So(host.fetches, ShouldEqual, 0)
			So(host.ran("cd /home/deploy/webapps/foo && git clone https://github.com/example/foo.git ."), ShouldBeTrue)
			So(host.head, ShouldEqual, commitA)
		})

		Convey("from a stale checkout", func() {
			host.files[gitDir] = ""
			host.head = commitA
			So(SyncSource(ctx, host, c, commitB), ShouldBeNil)
			So(host.clones, ShouldEqual, 0)
			So(host.fetches, ShouldEqual, 1)
			So(host.head, ShouldEqual, commitB)
		})

		Convey("from a dirty checkout", func() {
			host.files[gitDir] = ""
			host.head = commitA
			host.dirty = true
			So(SyncSource(ctx, host, c, commitA), ShouldBeNil)
			So(host.head, ShouldEqual, commitA)
			So(host.dirty, ShouldBeFalse)
		})

		Convey("rejects something that is not a commit hash", func() {
			err := SyncSource(ctx, host, c, "main; rm -rf /")
			So(apperr.Is(err, apperr.ValidationError), ShouldBeTrue)
			So(host.commands, ShouldBeEmpty)
		})

		Convey("stops when the clone fails", func() {
			host.failWith("git clone", 128, "fatal: repository not found")
			err := SyncSource(ctx, host, c, commitA)
			cmdErr, ok := apperr.AsCommand(err)
			So(ok, ShouldBeTrue)
			So(cmdErr.ExitCode, ShouldEqual, 128)
			So(host.ran("git reset"), ShouldBeFalse)
		})
	})
}

func TestInstallDependencies(t *testing.T) {
	Convey("InstallDependencies", t, func() {
		ctx := context.Background()
		c := mustBind()
		host := newFakeHost(c)

		Convey("runs pip inside the virtualenv", func() {
			So(InstallDependencies(ctx, host, c), ShouldBeNil)
			So(host.commands, ShouldResemble, []string{
				"cd /home/deploy/webapps/foo && workon foo && pip install -r requirements.txt",
			})
		})

		Convey("reports installer failure as a DependencyError", func() {
			host.failWith("pip install", 1, "Could not find a version that satisfies the requirement")
			err := InstallDependencies(ctx, host, c)
			So(apperr.Is(err, apperr.DependencyError), ShouldBeTrue)
			cmdErr, ok := apperr.AsCommand(err)
			So(ok, ShouldBeTrue)
			So(cmdErr.Output, ShouldContainSubstring, "Could not find a version")
		})
	})
}

func TestMaterializeSettings(t *testing.T) {
	Convey("MaterializeSettings", t, func() {
		ctx := context.Background()
		c := mustBind()
		host := newFakeHost(c)

		Convey("writes exactly three lines for a fresh target", func() {
			created, err := MaterializeSettings(ctx, host, c)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(host.files[c.SettingsPath], ShouldEqual,
				"from .common import *\n"+
					"ALLOWED_HOSTS = [\"foo.example.com\"]\n"+
					"STATIC_ROOT = \"/home/deploy/webapps/foo_static\"\n")

			Convey("and leaves the file byte-identical afterwards", func() {
				before := host.files[c.SettingsPath]
				created, err := MaterializeSettings(ctx, host, c)
				So(err, ShouldBeNil)
				So(created, ShouldBeFalse)
				So(host.files[c.SettingsPath], ShouldEqual, before)
			})
		})

		Convey("keeps manual edits to an existing overlay", func() {
			host.files[c.SettingsPath] = "DEBUG = True\n"
			created, err := MaterializeSettings(ctx, host, c)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(host.files[c.SettingsPath], ShouldEqual, "DEBUG = True\n")
		})
	})
}

func TestManagementCommands(t *testing.T) {
	Convey("Management commands run inside the virtualenv", t, func() {
		ctx := context.Background()
		c := mustBind()
		host := newFakeHost(c)

		So(CollectStatic(ctx, host, c), ShouldBeNil)
		So(SyncSchema(ctx, host, c), ShouldBeNil)
		So(host.commands, ShouldResemble, []string{
			"cd /home/deploy/webapps/foo && workon foo && ./manage.py collectstatic --noinput",
			"cd /home/deploy/webapps/foo && workon foo && ./manage.py migrate --noinput",
		})

		Convey("and failures are fatal", func() {
			host.failWith("collectstatic", 1, "ImproperlyConfigured")
			So(apperr.Is(CollectStatic(ctx, host, c), apperr.RemoteCommandError), ShouldBeTrue)
		})
	})
}
