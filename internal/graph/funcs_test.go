package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

func oks(vs ...ir.Value) []Result {
	out := make([]Result, len(vs))
	for i, v := range vs {
		out[i] = ok(v)
	}
	return out
}

func TestCombiners(t *testing.T) {
	tests := []struct {
		combine string
		in      []Result
		want    ir.Value
	}{
		{"first", oks(ir.Int(4), ir.Int(9)), ir.Int(4)},
		{"sum", oks(ir.Int(5), ir.Int(6)), ir.Int(11)},
		{"sum", oks(ir.Int(1), ir.Bool(true)), ir.Int(2)},
		{"product", oks(ir.Int(3), ir.Int(4)), ir.Int(12)},
		{"min", oks(ir.Int(3), ir.Int(-4), ir.Int(8)), ir.Int(-4)},
		{"max", oks(ir.Int(3), ir.Int(-4), ir.Int(8)), ir.Int(8)},
		{"concat", oks(ir.String("a"), ir.Int(1), ir.Null{}), ir.String("a1null")},
		{"concat", oks(ir.List{ir.Int(1)}, ir.List{ir.Int(2), ir.Int(3)}), ir.List{ir.Int(1), ir.Int(2), ir.Int(3)}},
		{"count", oks(ir.Int(0), ir.String("x"), ir.Bool(true)), ir.Int(2)},
		{"all", oks(ir.Int(1), ir.String("")), ir.Bool(false)},
		{"all", oks(ir.Int(1), ir.String("y")), ir.Bool(true)},
		{"any", oks(ir.Int(0), ir.List{}), ir.Bool(false)},
		{"any", oks(ir.Int(0), ir.List{ir.Null{}}), ir.Bool(true)},
		{"list", oks(ir.Int(1), ir.String("b")), ir.List{ir.Int(1), ir.String("b")}},
	}
	for _, tt := range tests {
		t.Run(tt.combine, func(t *testing.T) {
			fn, err := combinerFor(tt.combine)
			require.NoError(t, err)
			got := fn(tt.in)
			require.True(t, got.IsOk(), "got %v", got)
			assert.Equal(t, tt.want, got.Value())
		})
	}
}

func TestCombiners_Errors(t *testing.T) {
	failed := state.Err[ir.Value](state.NewReadError(state.CodeUnavailable, "down"))

	for name, fn := range combiners {
		if name == "first" {
			continue
		}
		got := fn([]Result{ok(ir.Int(1)), failed})
		assert.Equal(t, failed, got, name)
	}

	sum, _ := combinerFor("sum")
	got := sum(oks(ir.Int(1), ir.String("two")))
	require.True(t, got.IsErr())
	assert.Equal(t, state.CodeInvalid, got.Error().Code)
	assert.Contains(t, got.Error().Reason, "input 1 is string")

	_, err := combinerFor("median")
	assert.Error(t, err)
}

func TestTransforms(t *testing.T) {
	tests := []struct {
		name string
		in   ir.Value
		want ir.Value
	}{
		{"identity", ir.String("x"), ir.String("x")},
		{"negate", ir.Int(3), ir.Int(-3)},
		{"double", ir.Int(3), ir.Int(6)},
		{"halve", ir.Int(7), ir.Int(3)},
		{"not", ir.Int(0), ir.Bool(true)},
		{"string", ir.List{ir.Int(1)}, ir.String("[1]")},
		{"string", ir.String("raw"), ir.String("raw")},
		{"len", ir.String("h\u00e9llo"), ir.Int(5)},
		{"len", ir.Object{"a": ir.Null{}}, ir.Int(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := transformFor(tt.name)
			require.NoError(t, err)
			got := readTransform(tr)(ok(tt.in))
			require.True(t, got.IsOk(), "got %v", got)
			assert.Equal(t, tt.want, got.Value())
		})
	}
}

func TestTransforms_ErrorsAndInverses(t *testing.T) {
	negate, _ := transformFor("negate")
	got := readTransform(negate)(ok(ir.String("x")))
	require.True(t, got.IsErr())
	assert.Equal(t, state.CodeInvalid, got.Error().Code)

	failed := state.Err[ir.Value](state.NewReadError(state.CodeTimeout, "slow"))
	assert.Equal(t, failed, readTransform(negate)(failed))

	double, _ := transformFor("double")
	assert.Equal(t, ir.Int(4), writeTransform(double)(ir.Int(8)))
	assert.Equal(t, ir.String("x"), writeTransform(double)(ir.String("x")))

	str, _ := transformFor("string")
	assert.Nil(t, writeTransform(str))

	def, err := transformFor("")
	require.NoError(t, err)
	assert.Equal(t, "identity", def.inverse)
}

func TestChecksAndClamp(t *testing.T) {
	nonneg := checks["nonnegative"]
	assert.Empty(t, nonneg(ir.Int(0)))
	assert.Equal(t, "-1 is negative", nonneg(ir.Int(-1)))
	assert.Contains(t, nonneg(ir.String("1")), "expected an integer")

	nonempty := checks["nonempty"]
	assert.Empty(t, nonempty(ir.List{ir.Int(1)}))
	assert.Equal(t, "value is empty", nonempty(ir.String("")))

	assert.Nil(t, clamp(nil, nil))
	limit := clamp(i64(0), i64(10))
	assert.Equal(t, ir.Int(0), limit(ir.Int(-3)))
	assert.Equal(t, ir.Int(10), limit(ir.Int(30)))
	assert.Equal(t, ir.Int(4), limit(ir.Int(4)))
	assert.Equal(t, ir.String("s"), limit(ir.String("s")))
}
