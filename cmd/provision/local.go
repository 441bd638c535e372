package main

import (
	"fmt"
	"os"
	"provisioner/internal/config"
	apperr "provisioner/internal/error"
	"provisioner/internal/localtask"
	"provisioner/internal/models"
	"provisioner/internal/ssh"
	"provisioner/internal/ui"

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"
	"golang.org/x/term"
)

var cmdClean = &subcommands.Command{
	UsageLine: "clean [-v] [dir]",
	ShortDesc: "removes compiled Python files from the local checkout",
	CommandRun: func() subcommands.CommandRun {
		r := &cleanRun{}
		r.registerBaseFlags()
		return r
	},
}

type cleanRun struct {
	cmdRun
}

func (r *cleanRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	root := "."
	switch len(args) {
	case 0:
	case 1:
		root = args[0]
	default:
		return r.done(a, apperr.Newf(apperr.ValidationError, "clean takes at most one directory"))
	}

	n, err := localtask.Clean(root)
	if err != nil {
		return r.done(a, err)
	}
	r.logger().WithField("dir", root).Infof("removed %s entries", humanize.Comma(int64(n)))
	return 0
}

var cmdUnitTest = &subcommands.Command{
	UsageLine: "unittest [-config file] [-v] <target>",
	ShortDesc: "runs the target's unit test apps locally",
	CommandRun: func() subcommands.CommandRun {
		r := &unitTestRun{}
		r.registerBaseFlags()
		return r
	},
}

type unitTestRun struct {
	cmdRun
}

func (r *unitTestRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()

	target, err := r.target(args)
	if err != nil {
		return r.done(a, err)
	}
	x := ssh.NewLocal(os.Stdout, os.Stderr, r.logger())
	return r.done(a, localtask.UnitTest(ctx, x, ".", target.TestApps))
}

var cmdFuncTest = &subcommands.Command{
	UsageLine: "functest [-config file] [-v] <target>",
	ShortDesc: "runs the functional tests locally against the deployed target",
	CommandRun: func() subcommands.CommandRun {
		r := &funcTestRun{}
		r.registerBaseFlags()
		return r
	},
}

type funcTestRun struct {
	cmdRun
}

func (r *funcTestRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx, cancel := r.signalContext()
	defer cancel()

	target, err := r.target(args)
	if err != nil {
		return r.done(a, err)
	}
	x := ssh.NewLocal(os.Stdout, os.Stderr, r.logger())
	return r.done(a, localtask.FuncTest(ctx, x, ".", target.FunctionalTests, target.URL))
}

var cmdTargets = &subcommands.Command{
	UsageLine: "targets [-config file]",
	ShortDesc: "lists the configured targets",
	CommandRun: func() subcommands.CommandRun {
		r := &targetsRun{}
		r.registerBaseFlags()
		return r
	},
}

type targetsRun struct {
	cmdRun
}

func (r *targetsRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	m, err := r.manager()
	if err != nil {
		return r.done(a, err)
	}

	var rows [][]string
	for _, name := range m.TargetNames() {
		target, err := m.FindTarget(name)
		if err != nil {
			rows = append(rows, []string{name, "", "", err.Error()})
			continue
		}
		rows = append(rows, []string{name, models.KeyringAccount(target.User, target.Host), target.URL, ""})
	}
	fmt.Fprintln(a.GetOut(), ui.TargetTable(rows))
	return 0
}

var cmdLogin = &subcommands.Command{
	UsageLine: "login [-config file] [-delete] <target>",
	ShortDesc: "stores the target's SSH password in the system keyring",
	LongDesc: `Prompts for the SSH password of the target's user and stores it in the
system keyring. Targets with auth.keyring set use it when neither the agent
nor a key file gets them in.`,
	CommandRun: func() subcommands.CommandRun {
		r := &loginRun{}
		r.registerBaseFlags()
		r.Flags.BoolVar(&r.delete, "delete", false, "remove the stored password instead")
		return r
	},
}

type loginRun struct {
	cmdRun
	delete bool
}

func (r *loginRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	target, err := r.target(args)
	if err != nil {
		return r.done(a, err)
	}
	if r.delete {
		return r.done(a, config.DeletePassword(target.User, target.Host))
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return r.done(a, apperr.Newf(apperr.ValidationError, "login needs a terminal to read the password"))
	}
	fmt.Fprintf(a.GetErr(), "Password for %s: ", models.KeyringAccount(target.User, target.Host))
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(a.GetErr())
	if err != nil {
		return r.done(a, apperr.New(apperr.ValidationError, "failed to read password", err))
	}
	return r.done(a, config.SavePassword(target.User, target.Host, string(password)))
}
