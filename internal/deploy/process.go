package deploy

import (
	"context"
	"fmt"
	apperr "provisioner/internal/error"
	"provisioner/internal/ssh"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// State of the application server on a target.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// RestartResult says which branch Restart took.
type RestartResult int

const (
	// Reloaded means the running server accepted SIGHUP.
	Reloaded RestartResult = iota
	// Started means no server was running and a new one was started.
	Started
)

func (r RestartResult) String() string {
	if r == Started {
		return "started"
	}
	return "reloaded"
}

// Start launches gunicorn in the background, bound to loopback on the
// target's port, with its pid and log under the project's .gunicorn dir.
func Start(ctx context.Context, x ssh.Executor, c Context) error {
	if err := x.Run(ctx, ssh.Cmd("mkdir -p "+ssh.Quote(c.PidDir))); err != nil {
		return errors.Wrap(err, "failed to create pid directory")
	}
	program := fmt.Sprintf("gunicorn --daemon --bind 127.0.0.1:%d --pid %s --log-file %s %s",
		c.AppPort, ssh.Quote(c.PidPath), ssh.Quote(c.LogPath), ssh.Quote(c.WSGIApp))
	if err := x.Run(ctx, inEnv(c, program)); err != nil {
		return errors.Wrap(err, "failed to start gunicorn")
	}
	return nil
}

// Stop terminates the recorded process and removes the pid file. A missing
// pid file or a process that no longer exists is not an error.
func Stop(ctx context.Context, x ssh.Executor, c Context) error {
	pid, present, err := readPid(ctx, x, c)
	if err != nil || !present {
		return err
	}

	if pid > 0 {
		if err := signal(ctx, x, "TERM", pid); err != nil && !isNoSuchProcess(err) {
			return errors.Wrap(err, "failed to stop gunicorn")
		}
	}
	return removePid(ctx, x, c)
}

// Restart asks the running server to reload. When there is nothing to
// signal it starts a new server instead. Other signal failures surface.
func Restart(ctx context.Context, x ssh.Executor, c Context) (RestartResult, error) {
	pid, present, err := readPid(ctx, x, c)
	if err != nil {
		return Reloaded, err
	}

	if pid > 0 {
		err := signal(ctx, x, "HUP", pid)
		if err == nil {
			return Reloaded, nil
		}
		if !isNoSuchProcess(err) {
			return Reloaded, errors.Wrap(err, "failed to reload gunicorn")
		}
	}

	if present {
		if err := removePid(ctx, x, c); err != nil {
			return Started, err
		}
	}
	return Started, Start(ctx, x, c)
}

// Status reports whether the recorded process is alive.
func Status(ctx context.Context, x ssh.Executor, c Context) (State, error) {
	pid, _, err := readPid(ctx, x, c)
	if err != nil || pid == 0 {
		return Stopped, err
	}
	if err := signal(ctx, x, "0", pid); err != nil {
		if isNoSuchProcess(err) {
			return Stopped, nil
		}
		return Stopped, err
	}
	return Running, nil
}

// readPid returns the pid recorded for c. present is false when there is no
// pid file; pid is 0 when the file does not hold a number.
func readPid(ctx context.Context, x ssh.Executor, c Context) (int, bool, error) {
	exists, err := x.Exists(ctx, c.PidPath)
	if err != nil || !exists {
		return 0, false, err
	}
	data, err := x.ReadFile(ctx, c.PidPath)
	if err != nil {
		return 0, true, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, true, nil
	}
	return pid, true, nil
}

// signalCommand forces the C locale so kill's diagnostics stay matchable
// whatever the remote user's LANG is.
func signalCommand(sig string, pid int) ssh.Command {
	return ssh.Cmd(fmt.Sprintf("kill -%s %d", sig, pid)).Setenv("LC_ALL", "C")
}

func signal(ctx context.Context, x ssh.Executor, sig string, pid int) error {
	_, err := x.Output(ctx, signalCommand(sig, pid))
	return err
}

func removePid(ctx context.Context, x ssh.Executor, c Context) error {
	return errors.Wrap(x.Run(ctx, ssh.Cmd("rm -f "+ssh.Quote(c.PidPath))), "failed to remove pid file")
}

// isNoSuchProcess reports whether err is kill failing because the process
// is gone. Permission errors and the like are not matched.
func isNoSuchProcess(err error) bool {
	cmdErr, ok := apperr.AsCommand(err)
	return ok && strings.Contains(cmdErr.Output, "No such process")
}
