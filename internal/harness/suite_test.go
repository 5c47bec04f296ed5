package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "array_patches.yaml"),
		filepath.Join("testdata", "delayed_and_proxy.yaml"),
		filepath.Join("testdata", "derived_batching.yaml"),
		filepath.Join("testdata", "resource_lifecycle.yaml"),
	}, paths)
}

func TestFindScenarios_SingleFile(t *testing.T) {
	path := filepath.Join("testdata", "derived_batching.yaml")
	paths, err := FindScenarios(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestFindScenarios_Missing(t *testing.T) {
	_, err := FindScenarios(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestRunSuite_Testdata(t *testing.T) {
	paths, err := FindScenarios("testdata")
	require.NoError(t, err)

	result := RunSuite(paths)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Passed, "failures: %+v", result.Failures)
	assert.Zero(t, result.Failed)
}

func TestRunSuite_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "g.cue")
	require.NoError(t, os.WriteFile(graphPath, []byte(`states: n: {kind: "sync", initial: 1}`), 0644))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0644))

	failing := filepath.Join(dir, "failing.yaml")
	require.NoError(t, os.WriteFile(failing, []byte(`
name: failing
graph: g.cue
steps:
  - op: subscribe
    state: n
assertions:
  - type: final_value
    state: n
    value: 2
`), 0644))

	orphan := filepath.Join(dir, "orphan.yaml")
	require.NoError(t, os.WriteFile(orphan, []byte("name: orphan\ngraph: missing.cue\nsteps: [{op: flush}]\n"), 0644))

	result := RunSuite([]string{broken, failing, orphan})
	assert.Equal(t, 3, result.Total)
	assert.Zero(t, result.Passed)
	require.Len(t, result.Failures, 3)

	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "failing", result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Errors[0], "Expected: n = 2")
	assert.Contains(t, result.Failures[2].Errors[0], "does not exist")
}

func TestGraphNotFoundError(t *testing.T) {
	err := &GraphNotFoundError{Scenario: "s", ResolvedPath: "/x/g.cue"}
	assert.Equal(t, `scenario "s" references graph file /x/g.cue which does not exist`, err.Error())
}
