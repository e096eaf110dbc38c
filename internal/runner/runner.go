// Package runner executes one example case under an interpreter, capturing
// merged stdout/stderr into a shared capture file.
//
// Execution is strictly synchronous: Run blocks until the child terminates.
// A non-zero exit status is data for the aggregator, not an error of the
// runner itself; only inability to launch the child is a hard failure.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/vre-tools/exrun/internal/discovery"
)

// Environment variables consulted when no explicit interpreter is
// configured, in precedence order.
var interpreterEnvVars = []string{"EXRUN_PYTHON", "PYTHON"}

// Interpreter names probed on PATH as a last resort.
var interpreterFallbacks = []string{"python3", "python"}

// ErrNoInterpreter indicates no usable interpreter could be resolved.
// This is a fatal startup error: no case can execute without one.
var ErrNoInterpreter = errors.New("no usable interpreter found")

// LaunchError reports that a child process could not be started at all.
// The batch proceeds to the next case after a LaunchError.
type LaunchError struct {
	Case string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch %s: %v", e.Case, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error indicates the binary was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// IsPermissionDenied checks if the error indicates permission was denied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

// ResolveInterpreter determines the interpreter binary to use.
//
// Precedence: the explicit value (from config), then the EXRUN_PYTHON and
// PYTHON environment variables, then python3/python discovered on PATH.
// Whatever is selected must resolve via exec.LookPath; otherwise
// ErrNoInterpreter is returned.
func ResolveInterpreter(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrNoInterpreter, explicit, err)
		}
		return path, nil
	}

	for _, env := range interpreterEnvVars {
		if val := os.Getenv(env); val != "" {
			path, err := exec.LookPath(val)
			if err != nil {
				return "", fmt.Errorf("%w: %s=%s: %w", ErrNoInterpreter, env, val, err)
			}
			return path, nil
		}
	}

	for _, name := range interpreterFallbacks {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoInterpreter
}

// Runner executes example cases one at a time.
type Runner struct {
	interpreter string
	logger      *slog.Logger
}

// New creates a Runner for a resolved interpreter path.
// A nil logger suppresses diagnostic output.
func New(interpreter string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{interpreter: interpreter, logger: logger}
}

// Interpreter returns the resolved interpreter path.
func (r *Runner) Interpreter() string {
	return r.interpreter
}

// Run executes one case, writing its merged stdout/stderr to capturePath.
//
// The capture file is truncated before the child starts, so no case sees a
// prior case's residue. The child gets no input. Run blocks until the child
// terminates and returns its exit status; a non-zero status is returned with
// a nil error. A *LaunchError is returned only when the process could not be
// started.
func (r *Runner) Run(ctx context.Context, c discovery.Case, capturePath string) (int, error) {
	capture, err := os.OpenFile(capturePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("cannot open capture file: %w", err)
	}
	defer capture.Close()

	cmd := exec.CommandContext(ctx, r.interpreter, c.Path)
	cmd.Stdin = nil
	cmd.Stdout = capture
	cmd.Stderr = capture

	r.logger.Debug("executing case", "case", c.Name, "interpreter", r.interpreter)

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The child ran and failed. That is the aggregator's data.
		code := exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			// A signal death has no exit status; report it the way
			// the shell does.
			code = 128 + int(ws.Signal())
		}
		r.logger.Debug("case exited non-zero", "case", c.Name, "code", code)
		return code, nil
	}
	return 0, &LaunchError{Case: c.Name, Err: err}
}
