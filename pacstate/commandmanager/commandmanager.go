package commandmanager

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CommandConfig describes a single command invocation.
type CommandConfig struct {
	Command string
	Args    []string
	Sudo    bool
	Env     []string
}

// String renders the command line for logs and error messages.
func (c CommandConfig) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// Failed reports whether the command exited with a nonzero status.
func (r CommandResult) Failed() bool {
	return r.ExitCode != 0
}

// CommandManager provides methods to execute commands, both locally and remotely.
//
// A nonzero exit status is not an error: it is reported through
// CommandResult.ExitCode. The returned error is reserved for failures to run
// the command at all (spawn errors, SSH failures, context cancellation).
type CommandManager interface {
	// Run executes the command locally or remotely depending on the target host.
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)

	// RunLocal executes a command on the local system.
	RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error)

	// RunRemote executes a command on a remote system via SSH.
	RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error)
}

// CommandError is returned by callers that treat a nonzero exit as fatal.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// NewCommandError builds a CommandError from a failed result.
func NewCommandError(result CommandResult) *CommandError {
	return &CommandError{
		Command:  result.Command,
		ExitCode: result.ExitCode,
		Stderr:   result.STDERR,
	}
}
