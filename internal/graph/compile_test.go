package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
)

func TestCompileFile_Shop(t *testing.T) {
	spec, err := CompileFile("testdata/shop.cue")
	require.NoError(t, err)

	assert.Equal(t, "shop", spec.Name)
	assert.Equal(t,
		[]string{"price", "qty", "total", "label", "doubled", "cart", "stock", "greeting", "config"},
		stateOrder(spec))

	price, _ := spec.State("price")
	assert.Equal(t, ir.StateSync, price.Kind)
	assert.Equal(t, ir.Int(3), price.Initial)
	assert.True(t, price.Writable)
	require.NotNil(t, price.Min)
	require.NotNil(t, price.Max)
	assert.Equal(t, int64(0), *price.Min)
	assert.Equal(t, int64(100), *price.Max)

	total, _ := spec.State("total")
	assert.Equal(t, []string{"price", "qty"}, total.Inputs)
	assert.Equal(t, "product", total.Combine)

	stock, _ := spec.State("stock")
	require.NotNil(t, stock.Resource)
	assert.Equal(t, ir.ResourceSpec{
		Backend:     ir.BackendMemory,
		DebounceMS:  50,
		TimeoutMS:   1000,
		RetentionMS: 2000,
	}, *stock.Resource)

	greeting, _ := spec.State("greeting")
	assert.Equal(t, int64(100), greeting.DelayMS)

	cfg, _ := spec.State("config")
	assert.Equal(t, ir.Object{"theme": ir.String("dark"), "size": ir.Int(2)}, cfg.Initial)

	assert.Empty(t, Validate(spec))
}

func TestCompileSource_DefaultsName(t *testing.T) {
	spec, err := CompileSource("dir/counter.cue", []byte(`states: n: {kind: "sync", initial: 0}`))
	require.NoError(t, err)
	assert.Equal(t, "counter", spec.Name)

	n, _ := spec.State("n")
	assert.Nil(t, n.Resource)
}

func TestCompileSource_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{"no states", `name: "x"`, "states", "states is required"},
		{"empty states", `states: {}`, "states", "at least one state"},
		{"no kind", `states: a: {initial: 1}`, "states.a.kind", "kind is required"},
		{"float", `states: a: {kind: "sync", initial: 1.5}`, "states.a.initial", "floats are not allowed"},
		{"nested float", `states: a: {kind: "sync", initial: [1, {x: 2.5}]}`, "states.a.initial[1].x", "floats"},
		{"unknown field", `states: a: {kind: "sync", colour: "red"}`, "states.a.colour", "unknown field"},
		{"bad duration", `states: a: {kind: "delayed", delay: "soon"}`, "states.a.delay", "invalid duration"},
		{"negative duration", `states: a: {kind: "resource", timeout: -5}`, "states.a.timeout", "must not be negative"},
		{"non-string kind", `states: a: {kind: 3}`, "states.a.kind", "must be a string"},
		{"non-int min", `states: a: {kind: "sync", min: "low"}`, "states.a.min", "must be an integer"},
		{"incomplete", `states: a: {kind: "sync", initial: int}`, "states.a.initial", "concrete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource("test.cue", []byte(tt.src))
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "error %v is not a CompileError", err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileSource_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileSource("broken.cue", []byte("states: {\n  a: {kind: \n"))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "broken.cue:")
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "states.a", Message: "bad"}
	assert.Equal(t, "states.a: bad", err.Error())
}
