package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/resource"
	"github.com/roach88/statewire/internal/state"
	"github.com/roach88/statewire/internal/testutil"
)

type fixture struct {
	sched *testutil.ManualScheduler
	env   *resource.Env
	g     *Graph
}

func buildShop(t *testing.T) *fixture {
	t.Helper()
	spec, err := CompileFile("testdata/shop.cue")
	require.NoError(t, err)

	f := &fixture{sched: testutil.NewManualScheduler(), env: &resource.Env{}}
	f.g, err = Build(spec, f.sched, f.env)
	require.NoError(t, err)
	return f
}

func (f *fixture) node(t *testing.T, name string) Node {
	t.Helper()
	n, found := f.g.Node(name)
	require.True(t, found, "no node %q", name)
	return n
}

// watch subscribes to name and returns the values seen so far on each call.
func (f *fixture) watch(t *testing.T, name string) func() []ir.Value {
	t.Helper()
	var got []ir.Value
	f.node(t, name).Subscribe(state.NewCallback(func(r Result) {
		if r.IsErr() {
			got = append(got, ir.String("error:"+r.Error().Code))
			return
		}
		got = append(got, r.Value())
	}), true)
	return func() []ir.Value { return got }
}

func (f *fixture) read(t *testing.T, name string) Result {
	t.Helper()
	var got *Result
	f.node(t, name).Then(func(r Result) { got = &r })
	f.sched.Flush()
	require.NotNil(t, got, "read of %q did not settle", name)
	return *got
}

func writeErr(f *state.Future[error]) error {
	err, _ := f.Value()
	return err
}

func TestBuild_DerivedFollowsInputs(t *testing.T) {
	f := buildShop(t)
	total := f.watch(t, "total")
	label := f.watch(t, "label")
	assert.Equal(t, []ir.Value{ir.Int(6)}, total())
	assert.Equal(t, []ir.Value{ir.String("6")}, label())

	require.NoError(t, writeErr(f.g.Write("price", ir.Int(5))))
	require.NoError(t, writeErr(f.g.Write("qty", ir.Int(3))))
	f.sched.Flush()

	assert.Equal(t, []ir.Value{ir.Int(6), ir.Int(15)}, total())
	assert.Equal(t, []ir.Value{ir.String("6"), ir.String("15")}, label())
}

func TestBuild_WritePipeline(t *testing.T) {
	f := buildShop(t)

	require.NoError(t, writeErr(f.g.Write("price", ir.Int(500))))
	assert.Equal(t, ir.Int(100), f.read(t, "price").Value())

	err := writeErr(f.g.Write("qty", ir.Int(-1)))
	var we *state.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, state.CodeInvalid, we.Code)

	err = writeErr(f.g.Write("label", ir.String("x")))
	require.ErrorAs(t, err, &we)
	assert.Equal(t, state.CodeNotWritable, we.Code)

	err = writeErr(f.g.Write("config", ir.Null{}))
	require.ErrorAs(t, err, &we)
	assert.Equal(t, state.CodeNotWritable, we.Code)

	assert.ErrorContains(t, writeErr(f.g.Write("ghost", ir.Null{})), "unknown state")
}

func TestBuild_WritableProxyMapsBack(t *testing.T) {
	f := buildShop(t)

	assert.Equal(t, ir.Int(6), f.read(t, "doubled").Value())
	require.NoError(t, writeErr(f.g.Write("doubled", ir.Int(8))))
	assert.Equal(t, ir.Int(4), f.read(t, "price").Value())
	assert.Equal(t, ir.Int(8), f.read(t, "doubled").Value())
}

func TestBuild_ArrayNode(t *testing.T) {
	f := buildShop(t)
	cart := f.watch(t, "cart")

	arr, found := f.g.Array("cart")
	require.True(t, found)
	arr.Push(ir.String("pear"))

	require.NoError(t, writeErr(f.g.Write("cart", ir.List{ir.String("fig")})))

	err := writeErr(f.g.Write("cart", ir.String("fig")))
	var we *state.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, state.CodeInvalid, we.Code)

	assert.Equal(t, []ir.Value{
		ir.List{ir.String("apple")},
		ir.List{ir.String("apple"), ir.String("pear")},
		ir.List{ir.String("fig")},
	}, cart())
}

func TestBuild_MemoryResource(t *testing.T) {
	f := buildShop(t)
	stock := f.watch(t, "stock")

	r, found := f.g.Resource("stock")
	require.True(t, found)
	assert.Equal(t, 50*time.Millisecond, r.Timing().Debounce)
	assert.Empty(t, stock())

	f.sched.Advance(50 * time.Millisecond)
	assert.Equal(t, []ir.Value{ir.Int(10)}, stock())

	mem, found := f.env.LookupMemory("stock")
	require.True(t, found)
	mem.Push(ir.Int(7))
	assert.Equal(t, []ir.Value{ir.Int(10), ir.Int(7)}, stock())

	require.NoError(t, writeErr(f.g.Write("stock", ir.Int(3))))
	assert.Equal(t, ir.Int(3), mem.Value())
}

func TestBuild_DelayedAndLazy(t *testing.T) {
	f := buildShop(t)

	var greeting *Result
	f.node(t, "greeting").Then(func(r Result) { greeting = &r })
	f.sched.Advance(99 * time.Millisecond)
	assert.Nil(t, greeting)
	f.sched.Advance(time.Millisecond)
	require.NotNil(t, greeting)
	assert.Equal(t, ir.String("hello"), greeting.Value())

	cfg := f.read(t, "config")
	assert.Equal(t, ir.Object{"theme": ir.String("dark"), "size": ir.Int(2)}, cfg.Value())
}

func TestBuild_Set(t *testing.T) {
	f := buildShop(t)
	total := f.watch(t, "total")

	require.NoError(t, f.g.Set("qty", ok(ir.Int(10))))
	f.sched.Flush()
	assert.Equal(t, []ir.Value{ir.Int(6), ir.Int(30)}, total())

	failed := state.Err[ir.Value](state.NewReadError(state.CodeUnavailable, "offline"))
	require.NoError(t, f.g.Set("price", failed))
	f.sched.Flush()
	assert.Equal(t, ir.String("error:UNA"), total()[2])

	require.NoError(t, f.g.Set("cart", ok(ir.List{})))
	assert.Error(t, f.g.Set("cart", ok(ir.Int(1))))
	assert.ErrorContains(t, f.g.Set("total", ok(ir.Int(1))), "no value of its own")
	assert.ErrorContains(t, f.g.Set("ghost", ok(ir.Int(1))), "unknown state")
}

func TestBuild_Related(t *testing.T) {
	f := buildShop(t)
	meta, found := f.node(t, "qty").Related()
	require.True(t, found)
	assert.Equal(t, map[string]any{"graph": "shop", "kind": "sync"}, meta)
	assert.Equal(t, "shop", f.g.Spec().Name)
	assert.Len(t, f.g.Names(), 9)
}

func TestBuild_Errors(t *testing.T) {
	sched := testutil.NewManualScheduler()

	_, err := Build(&ir.GraphSpec{Name: "g", States: []ir.StateSpec{
		{Name: "a", Kind: ir.StateDerived, Inputs: []string{"b"}},
		{Name: "b", Kind: ir.StateDerived, Inputs: []string{"a"}},
	}}, sched, nil)
	assert.ErrorContains(t, err, ErrCycle)

	_, err = Build(&ir.GraphSpec{Name: "g", States: []ir.StateSpec{
		{Name: "a", Kind: ir.StateSync},
		{Name: "b", Kind: ir.StateProxy, Source: "a", Transform: "len", Writable: true},
	}}, sched, nil)
	assert.ErrorContains(t, err, "cannot be reversed")

	_, err = Build(&ir.GraphSpec{Name: "g", States: []ir.StateSpec{
		{Name: "a", Kind: ir.StateResource, Resource: &ir.ResourceSpec{Backend: ir.BackendSQLite}},
	}}, sched, nil)
	assert.ErrorContains(t, err, "needs a store")
}

func TestResourceTiming_Defaults(t *testing.T) {
	defaults := state.Timing{Debounce: time.Second, Timeout: time.Minute}
	got := resourceTiming(&ir.ResourceSpec{DebounceMS: 5}, defaults)
	assert.Equal(t, state.Timing{Debounce: 5 * time.Millisecond, Timeout: time.Minute}, got)
}

func TestBuild_Disconnect(t *testing.T) {
	f := buildShop(t)
	f.watch(t, "stock")
	f.sched.Advance(50 * time.Millisecond)

	r, found := f.g.Resource("stock")
	require.True(t, found)
	require.True(t, r.Connected())

	f.g.Disconnect()
	assert.False(t, r.Connected())
}
