package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

func TestWatch_PrintsNotifications(t *testing.T) {
	out, err := execute(t, "watch", counterGraph, "sum", "a", "--write", "a=5", "--duration", "200ms")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"[1] sum = 3",
		"[2] a = 1",
		"[3] a = 5",
		"[4] sum = 7",
	}, strings.Split(strings.TrimSpace(out), "\n"))
}

func TestWatch_RefusedWriteKeepsValue(t *testing.T) {
	out, err := execute(t, "watch", counterGraph, "sum", "--write", "sum=4", "--duration", "100ms")
	require.NoError(t, err)
	assert.Equal(t, "[1] sum = 3", strings.TrimSpace(out))
}

func TestWatch_JSONLines(t *testing.T) {
	out, err := execute(t, "--format", "json", "watch", counterGraph, "items", "--duration", "100ms")
	require.NoError(t, err)

	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, "items", events[0]["state"])
	assert.Equal(t, []any{"x"}, events[0]["value"])
	assert.NotEmpty(t, events[0]["session"])
}

func TestWatch_SQLiteResource(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cells.db")
	graphPath := writeFile(t, dir, "stock.cue", `
name: "stock"
states: stock: {kind: "resource", backend: "sqlite", key: "stock", poll: "20ms"}
`)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, _, err = st.Put(context.Background(), "stock", ir.Int(12))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "watch", graphPath, "--db", dbPath, "--duration", "500ms")
	require.NoError(t, err)
	assert.Contains(t, out, "stock = 12")
}

func TestWatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown state", []string{"watch", counterGraph, "ghost"}, `unknown state "ghost"`},
		{"bad write", []string{"watch", counterGraph, "--write", "a"}, "want name=json"},
		{"float write", []string{"watch", counterGraph, "--write", "a=1.5"}, "floats are not allowed"},
		{"invalid graph", []string{"watch", filepath.Join("testdata", "graphs", "invalid.cue")}, "failed to load graph"},
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

func TestParseWrites(t *testing.T) {
	writes, err := parseWrites([]string{`a=5`, `items=["p","q"]`, `label="x=y"`})
	require.NoError(t, err)
	require.Len(t, writes, 3)
	assert.Equal(t, ir.Int(5), writes[0].value)
	assert.Equal(t, ir.List{ir.String("p"), ir.String("q")}, writes[1].value)
	assert.Equal(t, "label", writes[2].name)
	assert.Equal(t, ir.String("x=y"), writes[2].value)
}

func TestOpenEnv_OpensOnlyUsedStores(t *testing.T) {
	dir := t.TempDir()
	opts := &WatchOptions{
		RootOptions: &RootOptions{},
		Database:    filepath.Join(dir, "sub", "cells.db"),
		Bolt:        filepath.Join(dir, "sub", "vars.bolt"),
	}

	env, closeEnv, err := openEnv(opts, &ir.GraphSpec{Name: "plain"}, slog.Default())
	require.NoError(t, err)
	assert.Nil(t, env.Store)
	assert.Nil(t, env.Bolt)
	closeEnv()

	spec := &ir.GraphSpec{Name: "both", States: []ir.StateSpec{
		{Name: "c", Kind: ir.StateResource, Resource: &ir.ResourceSpec{Backend: ir.BackendSQLite}},
		{Name: "v", Kind: ir.StateResource, Resource: &ir.ResourceSpec{Backend: ir.BackendBolt}},
	}}
	env, closeEnv, err = openEnv(opts, spec, slog.Default())
	require.NoError(t, err)
	defer closeEnv()
	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Bolt)
}
