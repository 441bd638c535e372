package ssh

import (
	"context"
	"os"
)

// Executor runs commands and touches files on one host. Every deploy stage
// goes through it, which keeps stages testable against a fake.
type Executor interface {
	// Run executes cmd, streaming its output. A non-zero exit is a
	// RemoteCommandError.
	Run(ctx context.Context, cmd Command) error
	// Output executes cmd and returns what it wrote to stdout.
	Output(ctx context.Context, cmd Command) (string, error)
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// ReadFile returns the content of path.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// Append adds each line not already present in path, creating the file
	// if needed.
	Append(ctx context.Context, path string, lines ...string) error
	// WriteFile creates or replaces path.
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error
	// Close releases the connection.
	Close() error
}
