package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/graph"
	"github.com/roach88/statewire/internal/ir"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", name))
	require.NoError(t, err)
	return scenario
}

// runInline compiles graphSrc and runs the scenario in yamlSrc against it.
func runInline(t *testing.T, graphSrc, yamlSrc string) *Result {
	t.Helper()
	spec, err := graph.CompileSource("inline.cue", []byte(graphSrc))
	require.NoError(t, err)
	scenario, err := ParseScenario([]byte(yamlSrc))
	require.NoError(t, err)
	result, err := RunSpec(scenario, spec)
	require.NoError(t, err)
	return result
}

func TestRun_GoldenScenarios(t *testing.T) {
	for _, name := range []string{"derived_batching", "resource_lifecycle", "array_patches"} {
		t.Run(name, func(t *testing.T) {
			scenario := loadTestdata(t, name+".yaml")
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_DelayedAndProxy(t *testing.T) {
	result, err := Run(loadTestdata(t, "delayed_and_proxy.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var neg []string
	for _, ev := range result.Trace {
		if ev.Type == EventNotify && ev.State == "neg" {
			neg = append(neg, ev.String())
		}
	}
	assert.Equal(t, []string{
		"[2] notify neg error UNA",
		"[3] notify neg -4",
		"[4] notify neg -9",
		"[6] notify neg 0",
	}, neg)

	assert.Equal(t, `"ready"`, result.Final["later"])
	assert.Equal(t, "0", result.Final["a"])
	assert.Equal(t, "0", result.Final["neg"])
}

func TestRun_DeterministicTrace(t *testing.T) {
	scenario := loadTestdata(t, "resource_lifecycle.yaml")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	result := runInline(t, `states: n: {kind: "sync", initial: 1, writable: true}`, `
name: failing
graph: inline.cue
steps:
  - op: subscribe
    state: n
  - op: write
    state: n
    value: 2
assertions:
  - type: notify_count
    state: n
    count: 5
  - type: final_value
    state: n
    value: 2
`)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], "Expected: 5 notify events on n")
	assert.Contains(t, result.Errors[0], "Actual: 2")
}

func TestRun_StepExpectations(t *testing.T) {
	result := runInline(t, `states: {
	n: {kind: "sync", initial: 1, writable: true, check: "nonnegative"}
	ro: {kind: "sync", initial: 1}
}`, `
name: expectations
graph: inline.cue
steps:
  - op: write
    state: n
    value: -1
    expect: {}
  - op: write
    state: ro
    value: 3
    expect:
      error: INV
  - op: await
    state: n
    expect:
      value: 7
`)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"steps[0]: expected success, got error INV",
		"steps[1]: expected error INV, got error NWR",
		"steps[2]: expected 7, got 1",
	}, result.Errors)
}

func TestRun_UnsettledAwaitIsReported(t *testing.T) {
	result := runInline(t, `states: d: {kind: "delayed", initial: 1, delay: "1s"}`, `
name: unsettled
graph: inline.cue
steps:
  - op: await
    state: d
  - op: advance
    duration: 500ms
`)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{`steps[0]: await on "d" never settled`}, result.Errors)
	assert.Equal(t, pendingValue, result.Final["d"])
}

func TestRun_SetError(t *testing.T) {
	result := runInline(t, `states: {
	r: {kind: "resource", backend: "memory", initial: 1}
	list: {kind: "array", initial: []}
}`, `
name: set_error
graph: inline.cue
steps:
  - op: subscribe
    state: r
  - op: set
    state: r
    error:
      code: UNA
      reason: offline
  - op: set
    state: list
    value: [1, 2]
assertions:
  - type: trace_contains
    event: notify
    state: r
    error: UNA
  - type: final_value
    state: list
    value: [1, 2]
`)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StructuralErrors(t *testing.T) {
	graphSrc := `states: {
	n: {kind: "sync", initial: 1}
	items: {kind: "array", initial: []}
}`
	tests := []struct {
		name    string
		steps   string
		wantErr string
	}{
		{
			name:    "unknown state",
			steps:   "  - op: subscribe\n    state: ghost\n",
			wantErr: `unknown state "ghost"`,
		},
		{
			name:    "double subscribe",
			steps:   "  - op: subscribe\n    state: n\n  - op: subscribe\n    state: n\n",
			wantErr: `steps[1] (subscribe): state "n" is already subscribed`,
		},
		{
			name:    "unsubscribe without subscribe",
			steps:   "  - op: unsubscribe\n    state: n\n",
			wantErr: "is not subscribed",
		},
		{
			name:    "array op on scalar",
			steps:   "  - op: pop\n    state: n\n",
			wantErr: `state "n" is not an array`,
		},
		{
			name:    "float value",
			steps:   "  - op: write\n    state: n\n    value: 1.5\n",
			wantErr: "floats are not allowed",
		},
		{
			name:    "set on unknown state",
			steps:   "  - op: set\n    state: ghost\n    value: 1\n",
			wantErr: `unknown state "ghost"`,
		},
	}

	spec, err := graph.CompileSource("inline.cue", []byte(graphSrc))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := ParseScenario([]byte("name: x\ngraph: inline.cue\nsteps:\n" + tt.steps))
			require.NoError(t, err)

			_, err = RunSpec(scenario, spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_MissingGraph(t *testing.T) {
	scenario := &Scenario{
		Name:  "lost",
		Graph: filepath.Join(t.TempDir(), "missing.cue"),
		Steps: []Step{{Op: OpFlush}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	var notFound *GraphNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "lost", notFound.Scenario)
}

func TestRun_InvalidGraph(t *testing.T) {
	spec := &ir.GraphSpec{Name: "bad", States: []ir.StateSpec{{Name: "x", Kind: "blob"}}}
	scenario := &Scenario{Name: "bad", Graph: "bad.cue", Steps: []Step{{Op: OpFlush}}}

	_, err := RunSpec(scenario, spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build graph")
}
