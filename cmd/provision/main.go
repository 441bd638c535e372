package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"provisioner/internal/config"
	apperr "provisioner/internal/error"
	"provisioner/internal/models"
	"provisioner/internal/ssh"

	"github.com/maruel/subcommands"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var application = &subcommands.DefaultApplication{
	Name:  "provision",
	Title: "Deploys a Django application to a target host over SSH.",
	Commands: []*subcommands.Command{
		subcommands.CmdHelp,
		cmdDeploy,
		cmdStart,
		cmdStop,
		cmdRestart,
		cmdStatus,
		cmdClean,
		cmdUnitTest,
		cmdFuncTest,
		cmdTargets,
		cmdLogin,
	},
}

func main() {
	os.Exit(subcommands.Run(application, nil))
}

// cmdRun holds the flags every action shares.
type cmdRun struct {
	subcommands.CommandRunBase

	configPath string
	verbose    bool
}

func (r *cmdRun) registerBaseFlags() {
	r.Flags.StringVar(&r.configPath, "config", "", "target file; defaults to ./deploy.yaml, then ~/.config/provisioner/deploy.yaml")
	r.Flags.BoolVar(&r.verbose, "v", false, "log every command before it runs")
}

func (r *cmdRun) logger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if r.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(logger)
}

// signalContext is cancelled on the first interrupt. Deploys stop at the next
// stage boundary.
func (r *cmdRun) signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func (r *cmdRun) manager() (*config.Manager, error) {
	m := config.NewManager(r.configPath)
	if err := m.Load(); err != nil {
		return nil, err
	}
	r.logger().WithField("path", m.GetConfigPath()).Debug("target file loaded")
	return m, nil
}

// target resolves the single positional target name.
func (r *cmdRun) target(args []string) (models.Target, error) {
	if len(args) != 1 {
		return models.Target{}, apperr.Newf(apperr.ValidationError, "expected exactly one target name, got %d arguments", len(args))
	}
	m, err := r.manager()
	if err != nil {
		return models.Target{}, err
	}
	return m.FindTarget(args[0])
}

// dial connects to target. Output of remote commands goes to stdout and
// stderr.
func (r *cmdRun) dial(ctx context.Context, target models.Target, log *logrus.Entry, stdout, stderr io.Writer) (*ssh.Client, error) {
	opts := ssh.Options{
		Host:   target.Host,
		Port:   target.SSHPort,
		User:   target.User,
		Auth:   target.Auth,
		Stdout: stdout,
		Stderr: stderr,
		Logger: log,
	}
	if target.Auth.UseKeyring() {
		password, err := config.LoadPassword(target.User, target.Host)
		switch {
		case errors.Is(err, config.ErrNoPassword):
			log.Warnf("no password stored for %s, run provision login %s", models.KeyringAccount(target.User, target.Host), target.Name)
		case err != nil:
			return nil, err
		default:
			opts.Password = password
		}
	}
	return ssh.Dial(ctx, opts)
}

// done reports err and returns the process exit code. A failed command's
// captured output is printed as is.
func (r *cmdRun) done(a subcommands.Application, err error) int {
	if err == nil {
		return 0
	}
	w := a.GetErr()
	fmt.Fprintf(w, "%s: %s\n", a.GetName(), err)

	var hostKey *ssh.HostKeyVerificationRequired
	if errors.As(err, &hostKey) {
		fmt.Fprintf(w, "set auth.accept_new_host_key for this target to trust %s\n", hostKey.Fingerprint)
	}
	if cmdErr, ok := apperr.AsCommand(err); ok {
		fmt.Fprintf(w, "command: %s\nexit status: %d\n", cmdErr.Command, cmdErr.ExitCode)
		if cmdErr.Output != "" {
			fmt.Fprint(w, cmdErr.Output)
		}
	}
	return 1
}
