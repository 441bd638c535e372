// internal/error/error.go

package error

import (
	"errors"
	"fmt"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	ConnectionError
	RemoteCommandError
	DependencyError
	FileError
	ValidationError
)

func (t ErrorType) String() string {
	switch t {
	case ConfigError:
		return "config error"
	case ConnectionError:
		return "connection error"
	case RemoteCommandError:
		return "remote command error"
	case DependencyError:
		return "dependency error"
	case FileError:
		return "file error"
	case ValidationError:
		return "validation error"
	}
	return "error"
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Newf builds an AppError without a cause.
func Newf(errType ErrorType, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

// CommandError is the cause carried by RemoteCommandError. Output holds the
// tail of what the command printed, shown to the user as is.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%q exited with status %d", e.Command, e.ExitCode)
}

// NewCommandError wraps a failed command into a RemoteCommandError.
func NewCommandError(command string, exitCode int, output string) *AppError {
	return New(RemoteCommandError, "command failed", &CommandError{
		Command:  command,
		ExitCode: exitCode,
		Output:   output,
	})
}

// Is reports whether any AppError in err's chain has the given type.
func Is(err error, errType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Err
	}
	return false
}

// AsCommand returns the innermost CommandError in err's chain.
func AsCommand(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}
