package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_PassingScenario(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("testdata", "scenarios", "derived_batching.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "Trace (4 events):\n")
	assert.Contains(t, out, "  [1] notify sum 3\n")
	assert.Contains(t, out, "  [2] write_result a 5\n")
	assert.Contains(t, out, "  [4] notify sum 15\n")
	assert.Contains(t, out, markOK+" derived_batching\n")
}

func TestRun_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", filepath.Join("testdata", "scenarios", "items_push.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Scenario string            `json:"scenario"`
			Pass     bool              `json:"pass"`
			Trace    []map[string]any  `json:"trace"`
			Final    map[string]string `json:"final"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "items_push", resp.Data.Scenario)
	assert.True(t, resp.Data.Pass)
	require.Len(t, resp.Data.Trace, 2)
	assert.Equal(t, "added@1", resp.Data.Trace[1]["patch"])
	assert.Equal(t, `["x","y"]`, resp.Data.Final["items"])
}

func TestRun_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wrong.yaml", `
name: wrong
graph: counter.cue
steps:
  - op: subscribe
    state: sum
assertions:
  - type: final_value
    state: sum
    value: 4
`)

	out, err := execute(t, "run", path, "--graph-dir", filepath.Join("testdata", "scenarios"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, markFail+" wrong\n")
	assert.Contains(t, out, "Expected: sum = 4")
}

func TestRun_CommandErrors(t *testing.T) {
	dir := t.TempDir()
	unknownState := writeFile(t, dir, "ghost.yaml", `
name: ghost
graph: counter.cue
steps:
  - op: subscribe
    state: ghost
`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing scenario", []string{"run", filepath.Join(dir, "nope.yaml")}, "failed to load scenario"},
		{"missing graph", []string{"run", unknownState}, "scenario execution failed"},
		{"unknown state", []string{"run", unknownState, "--graph-dir", filepath.Join("testdata", "scenarios")}, `unknown state "ghost"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
