package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// CommandError carries the captured stderr of a failed provider CLI
// invocation, which is what error classification keys on.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// RunCommand executes a provider CLI and returns its stdout.
// Package-level variable to allow overriding in tests.
var RunCommand = func(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Command: name, Stderr: stderrBuf.String(), Err: err}
	}
	return stdoutBuf.String(), nil
}

// runJSON executes a provider CLI and unmarshals its stdout into out.
func runJSON(ctx context.Context, out interface{}, name string, args ...string) error {
	stdout, err := RunCommand(ctx, name, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		return fmt.Errorf("failed to parse %s output: %w", name, err)
	}
	return nil
}

// cliErr classifies err for the given provider, keeping the CLI stderr
// available to the phrase matcher.
func cliErr(provider Provider, err error) error {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return classifyCLIError(provider, cmdErr.Stderr, err)
	}
	return classifyCLIError(provider, err.Error(), err)
}
