package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	apperr "provisioner/internal/error"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Local is an Executor for the invoking machine. It backs the local test
// and clean actions and targets marked local.
type Local struct {
	Stdout io.Writer
	Stderr io.Writer
	Log    *logrus.Entry
}

var _ Executor = (*Local)(nil)

// NewLocal returns a Local executor streaming to the given writers.
func NewLocal(stdout, stderr io.Writer, log *logrus.Entry) *Local {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Local{Stdout: stdout, Stderr: stderr, Log: log}
}

func (l *Local) Run(ctx context.Context, cmd Command) error {
	return l.exec(ctx, cmd, l.Stdout)
}

func (l *Local) Output(ctx context.Context, cmd Command) (string, error) {
	var stdout bytes.Buffer
	if err := l.exec(ctx, cmd, &stdout); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

func (l *Local) exec(ctx context.Context, cmd Command, stdout io.Writer) error {
	script := cmd.Script()
	l.Log.WithField("command", script).Debug("run local")

	tail := newTailBuffer(maxOutputTail)
	c := exec.CommandContext(ctx, "bash", "-c", script)
	c.Stdout = io.MultiWriter(stdout, tail)
	c.Stderr = io.MultiWriter(l.Stderr, tail)

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return apperr.NewCommandError(script, exitErr.ExitCode(), tail.String())
		}
		return apperr.New(apperr.RemoteCommandError, fmt.Sprintf("failed to start %q", script), err)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperr.New(apperr.FileError, fmt.Sprintf("failed to stat %s", path), err)
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New(apperr.FileError, fmt.Sprintf("failed to read %s", path), err)
	}
	return data, nil
}

func (l *Local) Append(ctx context.Context, path string, lines ...string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to read %s", path), err)
	}
	data := appendMissing(existing, lines)
	if len(data) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to create directory for %s", path), err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to append to %s", path), err)
	}
	return nil
}

func (l *Local) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to create directory for %s", path), err)
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to chmod %s", path), err)
	}
	return nil
}

func (l *Local) Close() error {
	return nil
}
