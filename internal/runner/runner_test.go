package runner

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vre-tools/exrun/internal/discovery"
)

// writeScript creates an executable shell script usable as a test case or
// a fake interpreter.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestResolveInterpreterExplicit(t *testing.T) {
	path, err := ResolveInterpreter("/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", path)
}

func TestResolveInterpreterExplicitMissing(t *testing.T) {
	_, err := ResolveInterpreter("no-such-interpreter-xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoInterpreter)
}

func TestResolveInterpreterEnvOverride(t *testing.T) {
	t.Setenv("EXRUN_PYTHON", "/bin/sh")
	t.Setenv("PYTHON", "no-such-interpreter-xyz")

	path, err := ResolveInterpreter("")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", path)
}

func TestResolveInterpreterEnvMissingBinary(t *testing.T) {
	t.Setenv("EXRUN_PYTHON", "no-such-interpreter-xyz")

	_, err := ResolveInterpreter("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoInterpreter)
}

func TestRunCapturesMergedOutput(t *testing.T) {
	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "hello.py", `echo out; echo err 1>&2`)
	capture := filepath.Join(tmpDir, "capture.out")

	r := New("/bin/sh", nil)
	code, err := r.Run(context.Background(), discovery.Case{Name: "hello.py", Path: script}, capture)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Contains(t, string(data), "out")
	assert.Contains(t, string(data), "err")
}

func TestRunReturnsExitStatusAsData(t *testing.T) {
	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "fail.py", `echo boom; exit 3`)
	capture := filepath.Join(tmpDir, "capture.out")

	r := New("/bin/sh", nil)
	code, err := r.Run(context.Background(), discovery.Case{Name: "fail.py", Path: script}, capture)
	require.NoError(t, err, "non-zero exit is data, not an error")
	assert.Equal(t, 3, code)
}

func TestRunSignalDeathReportsShellStatus(t *testing.T) {
	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "crash.py", `kill -SEGV $$`)
	capture := filepath.Join(tmpDir, "capture.out")

	r := New("/bin/sh", nil)
	code, err := r.Run(context.Background(), discovery.Case{Name: "crash.py", Path: script}, capture)
	require.NoError(t, err, "a signal death is still the aggregator's data")
	assert.Equal(t, 128+int(syscall.SIGSEGV), code)
}

func TestRunTruncatesCaptureBetweenCases(t *testing.T) {
	tmpDir := t.TempDir()
	long := writeScript(t, tmpDir, "long.py", `echo "a much longer line of output"`)
	short := writeScript(t, tmpDir, "short.py", `echo hi`)
	capture := filepath.Join(tmpDir, "capture.out")

	r := New("/bin/sh", nil)
	_, err := r.Run(context.Background(), discovery.Case{Name: "long.py", Path: long}, capture)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), discovery.Case{Name: "short.py", Path: short}, capture)
	require.NoError(t, err)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data), "no residue from the prior case")
}

func TestRunLaunchError(t *testing.T) {
	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "hello.py", `echo hi`)
	capture := filepath.Join(tmpDir, "capture.out")

	r := New("/nonexistent/interpreter", nil)
	_, err := r.Run(context.Background(), discovery.Case{Name: "hello.py", Path: script}, capture)
	require.Error(t, err)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "hello.py", launchErr.Case)
}

func TestIsNotFound(t *testing.T) {
	_, err := ResolveInterpreter("no-such-interpreter-xyz")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(nil))
}
