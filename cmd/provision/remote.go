package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"provisioner/internal/deploy"
	"provisioner/internal/ui"
	"provisioner/internal/vcs"

	"github.com/maruel/subcommands"
	"github.com/sirupsen/logrus"
)

// remoteRun is the base of the actions that talk to a target host.
type remoteRun struct {
	cmdRun
}

// connect binds the named target and returns a provisioner for it. The
// returned func closes the connection.
func (r *remoteRun) connect(ctx context.Context, args []string, log *logrus.Entry, stdout, stderr io.Writer) (*deploy.Provisioner, func(), error) {
	target, err := r.target(args)
	if err != nil {
		return nil, nil, err
	}
	c, err := deploy.Bind(target)
	if err != nil {
		return nil, nil, err
	}
	log = log.WithField("target", target.Name)

	client, err := r.dial(ctx, target, log, stdout, stderr)
	if err != nil {
		return nil, nil, err
	}
	p := deploy.New(client, c, func() (string, error) { return vcs.Head(".") })
	p.Log = log
	return p, func() { client.Close() }, nil
}

var cmdDeploy = &subcommands.Command{
	UsageLine: "deploy [-config file] [-v] [-tui] <target>",
	ShortDesc: "brings the target up to date with the local HEAD",
	LongDesc: `Creates the virtualenv and secret key on first use, checks out the local
HEAD commit, installs requirements, writes the settings overlay, collects
static files, migrates the schema, then reloads or starts gunicorn.
Stops at the first failing step.`,
	CommandRun: func() subcommands.CommandRun {
		r := &deployRun{}
		r.registerBaseFlags()
		r.Flags.BoolVar(&r.tui, "tui", false, "show interactive progress when stdout is a terminal")
		return r
	},
}

type deployRun struct {
	remoteRun
	tui bool
}

func (r *deployRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()
	log := r.logger()

	interactive := r.tui && ui.IsTerminal(os.Stdout)
	stdout, stderr := io.Writer(os.Stdout), io.Writer(os.Stderr)
	if interactive {
		stdout, stderr = io.Discard, io.Discard
		log.Logger.SetOutput(io.Discard)
	}

	p, closeFn, err := r.connect(ctx, args, log, stdout, stderr)
	if err != nil {
		return r.done(a, err)
	}
	defer closeFn()

	if !interactive {
		p.Observer = &ui.LogObserver{Log: p.Log}
		return r.done(a, p.Deploy(ctx))
	}

	stages := p.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	err = ui.RunProgress(ctx, os.Stdout, p.Context.Target, names, func(ctx context.Context, obs *ui.ProgramObserver) error {
		p.Observer = obs
		return p.Deploy(ctx)
	})
	if err != nil {
		// The progress view already showed the failure.
		return 1
	}
	return 0
}

var cmdStart = &subcommands.Command{
	UsageLine: "start [-config file] [-v] <target>",
	ShortDesc: "starts gunicorn on the target",
	CommandRun: func() subcommands.CommandRun {
		r := &startRun{}
		r.registerBaseFlags()
		return r
	},
}

type startRun struct {
	remoteRun
}

func (r *startRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()

	p, closeFn, err := r.connect(ctx, args, r.logger(), os.Stdout, os.Stderr)
	if err != nil {
		return r.done(a, err)
	}
	defer closeFn()
	return r.done(a, p.Start(ctx))
}

var cmdStop = &subcommands.Command{
	UsageLine: "stop [-config file] [-v] <target>",
	ShortDesc: "stops gunicorn on the target if it is running",
	CommandRun: func() subcommands.CommandRun {
		r := &stopRun{}
		r.registerBaseFlags()
		return r
	},
}

type stopRun struct {
	remoteRun
}

func (r *stopRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()

	p, closeFn, err := r.connect(ctx, args, r.logger(), os.Stdout, os.Stderr)
	if err != nil {
		return r.done(a, err)
	}
	defer closeFn()
	return r.done(a, p.Stop(ctx))
}

var cmdRestart = &subcommands.Command{
	UsageLine: "restart [-config file] [-v] <target>",
	ShortDesc: "reloads gunicorn, starting it when it is not running",
	CommandRun: func() subcommands.CommandRun {
		r := &restartRun{}
		r.registerBaseFlags()
		return r
	},
}

type restartRun struct {
	remoteRun
}

func (r *restartRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()

	p, closeFn, err := r.connect(ctx, args, r.logger(), os.Stdout, os.Stderr)
	if err != nil {
		return r.done(a, err)
	}
	defer closeFn()

	result, err := p.Restart(ctx)
	if err != nil {
		return r.done(a, err)
	}
	fmt.Fprintln(a.GetOut(), result)
	return 0
}

var cmdStatus = &subcommands.Command{
	UsageLine: "status [-config file] [-v] <target>",
	ShortDesc: "prints whether gunicorn is running on the target",
	CommandRun: func() subcommands.CommandRun {
		r := &statusRun{}
		r.registerBaseFlags()
		return r
	},
}

type statusRun struct {
	remoteRun
}

func (r *statusRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()

	p, closeFn, err := r.connect(ctx, args, r.logger(), os.Stdout, os.Stderr)
	if err != nil {
		return r.done(a, err)
	}
	defer closeFn()

	state, err := p.Status(ctx)
	if err != nil {
		return r.done(a, err)
	}
	fmt.Fprintf(a.GetOut(), "%s: %s\n", p.Context.Target, state)
	return 0
}
