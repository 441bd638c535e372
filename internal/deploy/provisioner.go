package deploy

import (
	"context"
	"provisioner/internal/crypto"
	"provisioner/internal/ssh"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stage names, in deploy order.
const (
	StageVirtualEnv    = "virtualenv"
	StageSource        = "source"
	StageDependencies  = "dependencies"
	StageSettings      = "settings"
	StageCollectStatic = "collectstatic"
	StageSchema        = "schema"
	StageRestart       = "restart"
)

// Observer is told about every stage as it runs.
type Observer interface {
	StageStarted(name string)
	StageFinished(name string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) StageStarted(string)                        {}
func (nopObserver) StageFinished(string, time.Duration, error) {}

// Stage is one step of a deploy.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Provisioner runs the deploy sequence and the process actions for one
// bound target.
type Provisioner struct {
	Exec    ssh.Executor
	Context Context
	// Head returns the commit to deploy, normally the deployer's HEAD.
	Head func() (string, error)
	// NewSecret is only called when the target has no secret key yet.
	NewSecret SecretFunc
	Observer  Observer
	Log       *logrus.Entry
}

// New returns a Provisioner with the default secret source and no observer.
func New(x ssh.Executor, c Context, head func() (string, error)) *Provisioner {
	return &Provisioner{
		Exec:      x,
		Context:   c,
		Head:      head,
		NewSecret: crypto.GenerateSecretKey,
		Observer:  nopObserver{},
		Log:       logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (p *Provisioner) log() *logrus.Entry {
	if p.Log == nil {
		p.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return p.Log.WithField("target", p.Context.Target)
}

func (p *Provisioner) observer() Observer {
	if p.Observer == nil {
		return nopObserver{}
	}
	return p.Observer
}

// Stages lists the deploy steps in the order Deploy runs them.
func (p *Provisioner) Stages() []Stage {
	x, c := p.Exec, p.Context
	return []Stage{
		{StageVirtualEnv, func(ctx context.Context) error {
			changed, err := EnsureVirtualEnv(ctx, x, c, p.NewSecret)
			if changed {
				p.log().WithField("hook", c.HookPath).Info("virtualenv prepared")
			}
			return err
		}},
		{StageSource, func(ctx context.Context) error {
			commit, err := p.Head()
			if err != nil {
				return errors.Wrap(err, "failed to read local HEAD")
			}
			p.log().WithField("commit", commit).Info("syncing source")
			return SyncSource(ctx, x, c, commit)
		}},
		{StageDependencies, func(ctx context.Context) error {
			return InstallDependencies(ctx, x, c)
		}},
		{StageSettings, func(ctx context.Context) error {
			created, err := MaterializeSettings(ctx, x, c)
			if created {
				p.log().WithField("path", c.SettingsPath).Info("settings overlay written")
			}
			return err
		}},
		{StageCollectStatic, func(ctx context.Context) error {
			return CollectStatic(ctx, x, c)
		}},
		{StageSchema, func(ctx context.Context) error {
			return SyncSchema(ctx, x, c)
		}},
		{StageRestart, func(ctx context.Context) error {
			_, err := p.Restart(ctx)
			return err
		}},
	}
}

// Deploy runs every stage in order and stops at the first failure. There
// is no rollback. ctx is only checked between stages; a started stage
// runs to completion.
func (p *Provisioner) Deploy(ctx context.Context) error {
	obs := p.observer()
	for _, stage := range p.Stages() {
		if err := ctx.Err(); err != nil {
			return err
		}

		log := p.log().WithField("stage", stage.Name)
		log.Debug("stage started")
		obs.StageStarted(stage.Name)

		start := time.Now()
		err := stage.Run(ctx)
		elapsed := time.Since(start)
		obs.StageFinished(stage.Name, elapsed, err)

		if err != nil {
			log.WithError(err).Error("stage failed")
			return errors.Wrapf(err, "stage %s", stage.Name)
		}
		log.WithField("elapsed", elapsed).Debug("stage finished")
	}
	return nil
}

// Start launches the application server.
func (p *Provisioner) Start(ctx context.Context) error {
	if err := Start(ctx, p.Exec, p.Context); err != nil {
		return err
	}
	p.log().WithField("port", p.Context.AppPort).Info("gunicorn started")
	return nil
}

// Stop stops the application server if it is running.
func (p *Provisioner) Stop(ctx context.Context) error {
	if err := Stop(ctx, p.Exec, p.Context); err != nil {
		return err
	}
	p.log().Info("gunicorn stopped")
	return nil
}

// Restart reloads the server, starting it when it is not running.
func (p *Provisioner) Restart(ctx context.Context) (RestartResult, error) {
	result, err := Restart(ctx, p.Exec, p.Context)
	if err != nil {
		return result, err
	}
	p.log().WithField("result", result).Info("gunicorn restarted")
	return result, nil
}

// Status reports whether the server is running.
func (p *Provisioner) Status(ctx context.Context) (State, error) {
	return Status(ctx, p.Exec, p.Context)
}
