package cli

import (
	"errors"
	"fmt"

	"archival-hq/keeper/pkg/archive"
)

// Process exit codes. Scripts can rely on these.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitNotFound   = 3
	ExitForbidden  = 4
	ExitConflict   = 5
	ExitIntegrity  = 6
	ExitConfigFail = 7
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigFail
	}
	switch archive.KindOf(err) {
	case archive.KindValidation:
		return ExitUsage
	case archive.KindNotFound:
		return ExitNotFound
	case archive.KindForbidden:
		return ExitForbidden
	case archive.KindConflict:
		return ExitConflict
	case archive.KindIntegrity, archive.KindUnreadable:
		return ExitIntegrity
	default:
		return ExitFailure
	}
}
