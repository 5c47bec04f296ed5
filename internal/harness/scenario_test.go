package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
graph: graphs/counter.cue
steps:
  - op: subscribe
    state: sum
  - op: write
    state: a
    value: 5
    expect: {}
  - op: advance
    duration: 250ms
assertions:
  - type: notify_count
    state: sum
    count: 2
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, filepath.Join(dir, "graphs", "counter.cue"), scenario.Graph)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, OpWrite, scenario.Steps[1].Op)
	assert.Equal(t, 5, scenario.Steps[1].Value)
	require.NotNil(t, scenario.Steps[1].Expect)
	assert.Empty(t, scenario.Steps[1].Expect.Error)
	assert.Equal(t, "250ms", scenario.Steps[2].Duration)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, 2, scenario.Assertions[0].Count)
}

func TestLoadScenario_AbsoluteGraphPathKept(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "elsewhere", "g.cue")
	path := writeScenario(t, dir, `
name: abs
graph: `+graphPath+`
steps:
  - op: flush
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, graphPath, scenario.Graph)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: based
graph: counter.cue
steps:
  - op: flush
`)

	scenario, err := LoadScenarioWithBasePath(path, "/specs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/specs", "counter.cue"), scenario.Graph)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
graph: g.cue
step:
  - op: flush
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "graph: g.cue\nsteps: [{op: flush}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing graph",
			yaml:    "name: x\nsteps: [{op: flush}]\n",
			wantErr: "graph is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ngraph: g.cue\n",
			wantErr: "at least one step is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: jump}]\n",
			wantErr: `steps[0]: unknown op "jump"`,
		},
		{
			name:    "missing state",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: write, value: 1}]\n",
			wantErr: "steps[0]: write requires 'state'",
		},
		{
			name:    "advance without duration",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: advance}]\n",
			wantErr: "advance requires 'duration'",
		},
		{
			name:    "bad duration",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: advance, duration: soon}]\n",
			wantErr: "advance:",
		},
		{
			name:    "push without values",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: push, state: items}]\n",
			wantErr: "push requires 'values'",
		},
		{
			name:    "negative splice",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: splice, state: items, start: -1}]\n",
			wantErr: "must not be negative",
		},
		{
			name:    "set error without code",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: set, state: a, error: {reason: down}}]\n",
			wantErr: "set: error requires 'code'",
		},
		{
			name:    "expect on subscribe",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: subscribe, state: a, expect: {}}]\n",
			wantErr: "subscribe does not take 'expect'",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: flush}]\nassertions: [{type: vibes}]\n",
			wantErr: `assertions[0]: unknown assertion type "vibes"`,
		},
		{
			name:    "assertion without type",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: flush}]\nassertions: [{state: a}]\n",
			wantErr: "type is required",
		},
		{
			name:    "notify_count without state",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: flush}]\nassertions: [{type: notify_count, count: 1}]\n",
			wantErr: "notify_count requires 'state'",
		},
		{
			name:    "unknown event",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: flush}]\nassertions: [{type: event_count, event: boom}]\n",
			wantErr: `unknown event "boom"`,
		},
		{
			name:    "short trace_order",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: flush}]\nassertions: [{type: trace_order, events: [notify a]}]\n",
			wantErr: "at least 2 events",
		},
		{
			name:    "malformed trace_order entry",
			yaml:    "name: x\ngraph: g.cue\nsteps: [{op: flush}]\nassertions: [{type: trace_order, events: [notify a b, notify c]}]\n",
			wantErr: "must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
