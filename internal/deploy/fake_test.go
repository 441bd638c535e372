package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	apperr "provisioner/internal/error"
	"provisioner/internal/ssh"
	"sort"
	"strconv"
	"strings"
)

// fakeHost is an in-memory Executor that imitates the remote tools a
// deploy shells out to: virtualenvwrapper, git, gunicorn and kill.
type fakeHost struct {
	c     Context
	files map[string]string

	commands []string
	fail     map[string]error

	head    string
	dirty   bool
	clones  int
	fetches int

	pid     int
	alive   bool
	reloads int
	nextPid int
}

func newFakeHost(c Context) *fakeHost {
	return &fakeHost{
		c:       c,
		files:   make(map[string]string),
		fail:    make(map[string]error),
		nextPid: 4242,
	}
}

var _ ssh.Executor = (*fakeHost)(nil)

// noSuchProcess is kill's complaint about a dead pid. The host runs with a
// German locale, so the message is only in English under LC_ALL=C.
func noSuchProcess(cmd ssh.Command) error {
	pid := strings.Fields(cmd.Program)[2]
	if cmd.Env["LC_ALL"] != "C" {
		return apperr.NewCommandError(cmd.Program, 1, fmt.Sprintf("bash: Zeile 1: kill: (%s) - Kein passender Prozess gefunden\n", pid))
	}
	return apperr.NewCommandError(cmd.Program, 1, fmt.Sprintf("bash: line 1: kill: (%s) - No such process\n", pid))
}

// failWith makes every command whose program contains substr fail.
func (f *fakeHost) failWith(substr string, exitCode int, output string) {
	f.fail[substr] = apperr.NewCommandError(substr, exitCode, output)
}

func (f *fakeHost) ran(substr string) bool {
	return f.count(substr) > 0
}

func (f *fakeHost) count(substr string) int {
	n := 0
	for _, c := range f.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func (f *fakeHost) Run(ctx context.Context, cmd ssh.Command) error {
	_, err := f.Output(ctx, cmd)
	return err
}

func (f *fakeHost) Output(_ context.Context, cmd ssh.Command) (string, error) {
	f.commands = append(f.commands, cmd.Script())

	keys := make([]string, 0, len(f.fail))
	for k := range f.fail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(cmd.Program, k) {
			return "", f.fail[k]
		}
	}

	prog := cmd.Program
	switch {
	case strings.HasPrefix(prog, "mkvirtualenv "):
		// virtualenvwrapper leaves an empty hook behind.
		f.files[f.c.HookPath] = ""
	case strings.HasPrefix(prog, "git clone "):
		f.files[path.Join(cmd.Dir, ".git")] = ""
		f.clones++
	case prog == "git fetch":
		f.fetches++
	case strings.HasPrefix(prog, "git reset --hard "):
		f.head = strings.TrimPrefix(prog, "git reset --hard ")
		f.dirty = false
	case strings.HasPrefix(prog, "gunicorn "):
		if f.alive {
			return "", apperr.NewCommandError(prog, 1, "Already running on PID "+strconv.Itoa(f.pid))
		}
		f.pid = f.nextPid
		f.nextPid++
		f.alive = true
		f.files[f.c.PidPath] = strconv.Itoa(f.pid) + "\n"
	case strings.HasPrefix(prog, "kill "):
		fields := strings.Fields(prog)
		pid, _ := strconv.Atoi(fields[2])
		if !f.alive || pid != f.pid {
			return "", noSuchProcess(cmd)
		}
		switch fields[1] {
		case "-HUP":
			f.reloads++
		case "-TERM":
			f.alive = false
		}
	case strings.HasPrefix(prog, "rm -f "):
		delete(f.files, strings.TrimPrefix(prog, "rm -f "))
	}
	return "", nil
}

func (f *fakeHost) Exists(_ context.Context, p string) (bool, error) {
	_, ok := f.files[p]
	return ok, nil
}

func (f *fakeHost) ReadFile(_ context.Context, p string) ([]byte, error) {
	data, ok := f.files[p]
	if !ok {
		return nil, apperr.New(apperr.FileError, "failed to open "+p, os.ErrNotExist)
	}
	return []byte(data), nil
}

func (f *fakeHost) Append(_ context.Context, p string, lines ...string) error {
	existing := f.files[p]
	for _, l := range lines {
		if strings.Contains(existing, l+"\n") {
			continue
		}
		existing += l + "\n"
	}
	f.files[p] = existing
	return nil
}

func (f *fakeHost) WriteFile(_ context.Context, p string, data []byte, _ os.FileMode) error {
	f.files[p] = string(data)
	return nil
}

func (f *fakeHost) Close() error {
	return nil
}

// snapshot copies the files the deploy manages, for before/after checks.
func (f *fakeHost) snapshot() map[string]string {
	out := make(map[string]string, len(f.files))
	for k, v := range f.files {
		out[k] = v
	}
	return out
}
