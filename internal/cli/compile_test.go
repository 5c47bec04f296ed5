package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

var counterGraph = filepath.Join("testdata", "scenarios", "counter.cue")

func TestCompile_Text(t *testing.T) {
	out, err := execute(t, "compile", counterGraph)
	require.NoError(t, err)

	assert.Contains(t, out, markOK+" Compiled graph counter: 4 state(s)")
	assert.Contains(t, out, "  a: sync, writable\n")
	assert.Contains(t, out, "  sum: derived(sum) <- a, b\n")
	assert.Contains(t, out, "  items: array, writable\n")
	assert.Contains(t, out, "Hash: ")
}

func TestCompile_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", counterGraph)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Data.Graph)
	assert.Equal(t, "counter", resp.Data.Graph.Name)
	assert.Len(t, resp.Data.Graph.States, 4)

	want, err := ir.GraphHash(resp.Data.Graph)
	require.NoError(t, err)
	assert.Equal(t, want, resp.Data.Hash)
}

func TestCompile_OutputAndStore(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "counter.json")
	dbPath := filepath.Join(dir, "cells.db")

	out, err := execute(t, "compile", counterGraph, "-o", outFile, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote compiled graph to "+outFile)
	assert.Contains(t, out, "Saved graph to "+dbPath)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var spec ir.GraphSpec
	require.NoError(t, json.Unmarshal(data, &spec))
	assert.Equal(t, "counter", spec.Name)

	hash, err := ir.GraphHash(&spec)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	loaded, err := st.LoadGraph(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, "counter", loaded.Name)
}

func TestCompile_ValidationErrors(t *testing.T) {
	path := filepath.Join("testdata", "graphs", "invalid.cue")

	out, err := execute(t, "compile", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "compilation failed with 2 error(s)")
	assert.Contains(t, out, markFail+" Compilation failed")
	assert.Contains(t, out, `E103: states.total.inputs: unknown state "qty"`)
	assert.Contains(t, out, `E102: states.mood.kind: invalid kind "feeling"`)
}

func TestCompile_ValidationErrorsJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", filepath.Join("testdata", "graphs", "invalid.cue"))
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Error  CLIError   `json:"error"`
		Data   []CLIError `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E103", resp.Error.Code)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "E102", resp.Data[1].Code)
}

func TestCompile_CommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantCode string
	}{
		{"missing file", filepath.Join("testdata", "graphs", "nope.cue"), ErrCodeNotFound},
		{"directory", filepath.Join("testdata", "graphs"), ErrCodeNotAFile},
		{"not cue", filepath.Join("testdata", "scenarios", "items_push.yaml"), ErrCodeNotCUE},
		{"syntax error", filepath.Join("testdata", "graphs", "broken.cue"), ErrCodeSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "compile", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantCode)
		})
	}
}

func TestLoadGraph_FailFast(t *testing.T) {
	spec, errs := LoadGraph(filepath.Join("testdata", "graphs", "invalid.cue"), LoadModeFailFast)
	require.NotNil(t, spec)
	require.Len(t, errs, 1)

	code, msg := errorCode(errs[0])
	assert.Equal(t, "E103", code)
	assert.Contains(t, msg, "states.total.inputs")
}

func TestLoadGraph_SyntaxErrorHasPosition(t *testing.T) {
	spec, errs := LoadGraph(filepath.Join("testdata", "graphs", "broken.cue"), LoadModeCollectAll)
	assert.Nil(t, spec)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Equal(t, ErrCodeSyntax, loadErr.Code)
	assert.True(t, loadErr.Pos.IsValid())
	assert.Contains(t, loadErr.Error(), "broken.cue:")
}

func TestDescribeState(t *testing.T) {
	tests := []struct {
		st   ir.StateSpec
		want string
	}{
		{ir.StateSpec{Name: "n", Kind: ir.StateSync}, "n: sync"},
		{ir.StateSpec{Name: "neg", Kind: ir.StateProxy, Source: "n", Transform: "negate", Writable: true}, "neg: proxy(negate) <- n, writable"},
		{ir.StateSpec{Name: "first", Kind: ir.StateDerived, Inputs: []string{"n"}}, "first: derived <- n"},
		{ir.StateSpec{Name: "feed", Kind: ir.StateResource, Resource: &ir.ResourceSpec{Backend: ir.BackendHTTP}}, "feed: resource [http]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeState(tt.st))
	}
}
