// internal/ssh/command.go

package ssh

import (
	"sort"
	"strings"
)

// Command is one shell command run by an Executor.
type Command struct {
	// Program is the shell text to run.
	Program string
	// Dir, when set, is entered with cd before anything else.
	Dir string
	// Prefix runs before Program, e.g. "workon myapp".
	Prefix string
	// Env is exported before Prefix and Program.
	Env map[string]string
}

// Cmd is a shorthand for a bare Command.
func Cmd(program string) Command {
	return Command{Program: program}
}

// In returns a copy of c that runs in dir.
func (c Command) In(dir string) Command {
	c.Dir = dir
	return c
}

// With returns a copy of c that runs after prefix.
func (c Command) With(prefix string) Command {
	c.Prefix = prefix
	return c
}

// Setenv returns a copy of c that exports key=value.
func (c Command) Setenv(key, value string) Command {
	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		env[k] = v
	}
	env[key] = value
	c.Env = env
	return c
}

// Script joins directory change, exports, prefix and program with &&.
func (c Command) Script() string {
	var parts []string
	if c.Dir != "" {
		parts = append(parts, "cd "+Quote(c.Dir))
	}
	if len(c.Env) > 0 {
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, "export "+k+"="+Quote(c.Env[k]))
		}
	}
	if c.Prefix != "" {
		parts = append(parts, c.Prefix)
	}
	parts = append(parts, c.Program)
	return strings.Join(parts, " && ")
}

// Render wraps Script in a login shell so profile hooks such as
// virtualenvwrapper are loaded on the remote side.
func (c Command) Render() string {
	return "bash -l -c " + Quote(c.Script())
}

func (c Command) String() string {
	return c.Script()
}

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("@%+=:,./-_", r)
}
