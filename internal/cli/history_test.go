package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCommandEmpty(t *testing.T) {
	out, err := execute(t, "history", "--dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistoryShowUnknownRun(t *testing.T) {
	_, err := execute(t, "history", "show", "no-such-id", "--dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestHistoryShowAfterRun(t *testing.T) {
	dir := setupExamples(t)
	writeCase(t, dir, "a.py", `echo alpha`)
	writeExpected(t, dir, "a.py", "alpha\n")

	_, err := execute(t, "run", dir)
	require.NoError(t, err)

	out, err := execute(t, "history", "--dir", dir, "--format", "json")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	runs, ok := response.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, runs, 1)
	id := runs[0].(map[string]interface{})["id"].(string)

	show, err := execute(t, "history", "show", id, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, show, "Verdict:  0")
	assert.Contains(t, show, "✓ a.py")
	assert.Contains(t, show, "✓ cleanup.py (exit 0) [finalize]")
}

func TestHistoryPrune(t *testing.T) {
	dir := setupExamples(t)
	writeCase(t, dir, "a.py", `echo alpha`)
	writeExpected(t, dir, "a.py", "alpha\n")

	_, err := execute(t, "run", dir)
	require.NoError(t, err)

	// Everything is newer than the cutoff; nothing goes.
	out, err := execute(t, "history", "prune", "--dir", dir, "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0 run(s)")

	// A zero-day cutoff removes the run just recorded.
	out, err = execute(t, "history", "prune", "--dir", dir, "--days", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 run(s)")
}
