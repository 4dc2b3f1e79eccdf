// Package command runs external programs (womtool, zip, git) behind an
// interface so callers can be tested without the binaries installed.
package command

import (
	"bytes"
	"context"
	"os/exec"
)

// Runner abstracts command execution for testing.
type Runner interface {
	// Run executes name with args in dir ("" for the current directory).
	// A non-zero exit is reported through exitCode with a nil error; err is
	// set only when the process could not be started.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, exitCode int, err error)

	// LookPath reports where name is on PATH.
	LookPath(name string) (string, error)
}

// OSRunner is the real implementation using os/exec.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	switch e := runErr.(type) {
	case nil:
		return stdout, stderr, 0, nil
	case *exec.ExitError:
		return stdout, stderr, e.ExitCode(), nil
	default:
		return stdout, stderr, -1, runErr
	}
}

func (OSRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
