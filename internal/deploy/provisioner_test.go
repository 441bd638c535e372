package deploy

import (
	"context"
	"errors"
	apperr "provisioner/internal/error"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	. "github.com/smartystreets/goconvey/convey"
)

type recordingObserver struct {
	started  []string
	finished []string
	failed   string
}

func (r *recordingObserver) StageStarted(name string) {
	r.started = append(r.started, name)
}

func (r *recordingObserver) StageFinished(name string, _ time.Duration, err error) {
	r.finished = append(r.finished, name)
	if err != nil {
		r.failed = name
	}
}

func newTestProvisioner(host *fakeHost, c Context, head *string) (*Provisioner, *recordingObserver, *int) {
	p := New(host, c, func() (string, error) { return *head, nil })
	generated := 0
	p.NewSecret = countingSecrets(&generated)
	obs := &recordingObserver{}
	p.Observer = obs
	return p, obs, &generated
}

func TestDeploy(t *testing.T) {
	Convey("Given a fresh host", t, func() {
		ctx := context.Background()
		c := mustBind()
		host := newFakeHost(c)
		head := commitA
		p, obs, generated := newTestProvisioner(host, c, &head)

		Convey("a deploy runs every stage in order and leaves the server running", func() {
			So(p.Deploy(ctx), ShouldBeNil)

			want := []string{
				StageVirtualEnv, StageSource, StageDependencies, StageSettings,
				StageCollectStatic, StageSchema, StageRestart,
			}
			So(cmp.Diff(want, obs.started), ShouldEqual, "")
			So(cmp.Diff(want, obs.finished), ShouldEqual, "")
			So(obs.failed, ShouldEqual, "")

			So(host.head, ShouldEqual, commitA)
			So(host.clones, ShouldEqual, 1)
			So(*generated, ShouldEqual, 1)

			state, err := p.Status(ctx)
			So(err, ShouldBeNil)
			So(state, ShouldEqual, Running)

			order := []string{"mkvirtualenv", "git clone", "git reset --hard " + commitA, "pip install",
				"collectstatic", "migrate", "gunicorn"}
			last := -1
			for _, step := range order {
				idx := -1
				for i, cmd := range host.commands {
					if strings.Contains(cmd, step) {
						idx = i
						break
					}
				}
				So(idx, ShouldBeGreaterThan, last)
				last = idx
			}

			Convey("and a redeploy of a new commit converges without rotating anything", func() {
				hook := host.files[c.HookPath]
				settings := host.files[c.SettingsPath]
				head = commitB

				So(p.Deploy(ctx), ShouldBeNil)
				So(host.head, ShouldEqual, commitB)
				So(host.clones, ShouldEqual, 1)
				So(host.fetches, ShouldEqual, 1)
				So(host.count("mkvirtualenv"), ShouldEqual, 1)
				So(*generated, ShouldEqual, 1)
				So(host.files[c.HookPath], ShouldEqual, hook)
				So(host.files[c.SettingsPath], ShouldEqual, settings)
				So(host.reloads, ShouldEqual, 1)
				So(host.count("gunicorn --daemon"), ShouldEqual, 1)
			})
		})

		Convey("the first failing stage aborts the sequence", func() {
			host.failWith("pip install", 1, "ERROR: No matching distribution found for Django==1.6")

			err := p.Deploy(ctx)
			So(err, ShouldNotBeNil)
			So(apperr.Is(err, apperr.DependencyError), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "stage dependencies")

			cmdErr, ok := apperr.AsCommand(err)
			So(ok, ShouldBeTrue)
			So(cmdErr.Output, ShouldContainSubstring, "No matching distribution")

			So(obs.failed, ShouldEqual, StageDependencies)
			So(obs.started, ShouldResemble, []string{StageVirtualEnv, StageSource, StageDependencies})
			So(host.ran("collectstatic"), ShouldBeFalse)
			So(host.ran("gunicorn"), ShouldBeFalse)
		})

		Convey("a HEAD lookup failure stops before touching the checkout", func() {
			p.Head = func() (string, error) { return "", errors.New("not a git repository") }
			So(p.Deploy(ctx), ShouldNotBeNil)
			So(obs.failed, ShouldEqual, StageSource)
			So(host.ran("git"), ShouldBeFalse)
		})

		Convey("a cancelled context stops between stages", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(p.Deploy(cctx), ShouldEqual, context.Canceled)
			So(obs.started, ShouldBeEmpty)
		})

		Convey("stop on a stopped target succeeds and restart starts it", func() {
			So(p.Stop(ctx), ShouldBeNil)
			result, err := p.Restart(ctx)
			So(err, ShouldBeNil)
			So(result, ShouldEqual, Started)
			state, err := p.Status(ctx)
			So(err, ShouldBeNil)
			So(state, ShouldEqual, Running)
			So(p.Start(ctx), ShouldNotBeNil)
		})
	})
}
