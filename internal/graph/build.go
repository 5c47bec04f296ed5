package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/loop"
	"github.com/roach88/statewire/internal/resource"
	"github.com/roach88/statewire/internal/state"
)

// Node is a built state as seen by callers.
type Node = state.Readable[ir.Value, state.ReadError]

// WritableNode is a node that accepts writes.
type WritableNode = state.Writable[ir.Value, state.ReadError]

// ArrayState is the list behind an array node.
type ArrayState = state.Array[ir.Value, state.ReadError]

// owned is implemented by states whose value the owner sets directly.
type owned interface {
	Set(v Result)
}

// Graph holds the states built from a GraphSpec, keyed by name.
type Graph struct {
	spec      *ir.GraphSpec
	nodes     map[string]Node
	arrays    map[string]*ArrayState
	resources map[string]*resource.Cell
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	logger *slog.Logger
	timing state.Timing
}

// WithLogger sets the logger handed to every state.
func WithLogger(l *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = l
	}
}

// WithTiming sets resource delays used where a state leaves them unset.
func WithTiming(t state.Timing) BuildOption {
	return func(c *buildConfig) {
		c.timing = t
	}
}

// Build validates spec and instantiates its states on sched. Resource
// states get their connectors from env; a nil env only supports memory
// resources.
func Build(spec *ir.GraphSpec, sched loop.Scheduler, env *resource.Env, opts ...BuildOption) (*Graph, error) {
	if errs := Validate(spec); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid graph %q: %w", spec.Name, errors.Join(joined...))
	}

	cfg := buildConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if env == nil {
		env = &resource.Env{}
	}
	if env.Logger == nil {
		env.Logger = cfg.logger
	}

	order, err := buildOrder(spec)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		spec:      spec,
		nodes:     make(map[string]Node, len(spec.States)),
		arrays:    make(map[string]*ArrayState),
		resources: make(map[string]*resource.Cell),
	}
	for _, name := range order {
		st, _ := spec.State(name)
		node, err := g.build(st, sched, env, &cfg)
		if err != nil {
			return nil, fmt.Errorf("build state %q: %w", name, err)
		}
		g.nodes[name] = node
	}
	cfg.logger.Debug("graph built", "graph", spec.Name, "states", len(order))
	return g, nil
}

func (g *Graph) baseOptions(st ir.StateSpec, cfg *buildConfig) []state.Option {
	graphName := g.spec.Name
	kind := st.Kind
	return []state.Option{
		state.WithName(st.Name),
		state.WithLogger(cfg.logger),
		state.WithRelated(func() map[string]any {
			return map[string]any{"graph": graphName, "kind": kind}
		}),
	}
}

func (g *Graph) valueOptions(st ir.StateSpec, cfg *buildConfig) []state.Option {
	opts := append(g.baseOptions(st, cfg), state.WithEqual(ir.Equal))
	if st.Writable {
		opts = append(opts, state.WithPassThrough())
	}
	if limit := clamp(st.Min, st.Max); limit != nil {
		opts = append(opts, state.WithLimit(limit))
	}
	if check, found := checks[st.Check]; found {
		opts = append(opts, state.WithCheck(check))
	}
	return opts
}

func (g *Graph) build(st ir.StateSpec, sched loop.Scheduler, env *resource.Env, cfg *buildConfig) (Node, error) {
	initial := st.Initial
	if initial == nil {
		initial = ir.Null{}
	}

	switch st.Kind {
	case ir.StateSync:
		return state.NewSync(ok(initial), g.valueOptions(st, cfg)...), nil

	case ir.StateLazy:
		return state.NewLazy(func() Result { return ok(initial) }, g.valueOptions(st, cfg)...), nil

	case ir.StateDelayed:
		delay := time.Duration(st.DelayMS) * time.Millisecond
		return state.NewDelayedValue[ir.Value, state.ReadError](func() *state.Future[ir.Value] {
			f := state.NewFuture[ir.Value]()
			sched.AfterFunc(delay, func() { f.Resolve(initial) })
			return f
		}, g.valueOptions(st, cfg)...), nil

	case ir.StateDerived:
		fn, err := combinerFor(st.Combine)
		if err != nil {
			return nil, err
		}
		inputs := make([]Node, len(st.Inputs))
		for i, in := range st.Inputs {
			inputs[i] = g.nodes[in]
		}
		return state.NewDerived[ir.Value, ir.Value, state.ReadError](sched, fn, inputs, g.baseOptions(st, cfg)...), nil

	case ir.StateProxy:
		t, err := transformFor(st.Transform)
		if err != nil {
			return nil, err
		}
		src := g.nodes[st.Source]
		opts := g.baseOptions(st, cfg)
		if !st.Writable {
			return state.NewProxy(src, readTransform(t), opts...), nil
		}
		write := writeTransform(t)
		if write == nil {
			return nil, fmt.Errorf("transform %q cannot be reversed for writes", st.Transform)
		}
		target, writable := src.(WritableNode)
		if !writable {
			return nil, fmt.Errorf("source %q does not accept writes", st.Source)
		}
		return state.NewProxyWrite(target, readTransform(t), write, opts...), nil

	case ir.StateArray:
		items, _ := initial.(ir.List)
		opts := append(g.baseOptions(st, cfg), state.WithEqual(ir.Equal))
		if st.Writable {
			opts = append(opts, state.WithPassThrough())
		}
		if check, found := checks[st.Check]; found {
			opts = append(opts, state.WithCheck(func(items []ir.Value) string {
				return check(ir.List(items))
			}))
		}
		arr := state.NewArray[ir.Value, state.ReadError](items, opts...)
		g.arrays[st.Name] = arr
		return state.NewProxyWrite[state.ArrayRead[ir.Value], ir.Value, state.ReadError](arr, readArray, writeArray, state.WithName(st.Name)), nil

	case ir.StateResource:
		conn, err := env.Connector(st)
		if err != nil {
			return nil, err
		}
		r := state.NewResource(sched, conn, resourceTiming(st.Resource, cfg.timing), g.valueOptions(st, cfg)...)
		g.resources[st.Name] = r
		return r, nil

	default:
		return nil, fmt.Errorf("unknown kind %q", st.Kind)
	}
}

func resourceTiming(rs *ir.ResourceSpec, defaults state.Timing) state.Timing {
	pick := func(ms int64, fallback time.Duration) time.Duration {
		if ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
		return fallback
	}
	return state.Timing{
		Debounce:    pick(rs.DebounceMS, defaults.Debounce),
		Timeout:     pick(rs.TimeoutMS, defaults.Timeout),
		Retention:   pick(rs.RetentionMS, defaults.Retention),
		WriteBounce: pick(rs.WriteBounceMS, defaults.WriteBounce),
	}
}

func readArray(r state.Result[state.ArrayRead[ir.Value], state.ReadError]) Result {
	return state.Map(r, func(a state.ArrayRead[ir.Value]) ir.Value {
		return ir.List(slices.Clone(a.Array))
	})
}

func writeArray(v ir.Value) state.ArrayRead[ir.Value] {
	list, _ := v.(ir.List)
	return state.ArrayRead[ir.Value]{Array: list}
}

// Spec returns the definition the graph was built from.
func (g *Graph) Spec() *ir.GraphSpec {
	return g.spec
}

// Names lists the states in declaration order.
func (g *Graph) Names() []string {
	return stateOrder(g.spec)
}

// Node returns the state named name.
func (g *Graph) Node(name string) (Node, bool) {
	n, found := g.nodes[name]
	return n, found
}

// Array returns the list behind an array node, for patch-level access.
func (g *Graph) Array(name string) (*ArrayState, bool) {
	a, found := g.arrays[name]
	return a, found
}

// Resource returns the resource state named name.
func (g *Graph) Resource(name string) (*resource.Cell, bool) {
	r, found := g.resources[name]
	return r, found
}

// Disconnect tears down every resource connection without waiting for
// retention. Call it on the scheduler once subscribers are gone.
func (g *Graph) Disconnect() {
	for _, r := range g.resources {
		r.Disconnect()
	}
}

// Write writes v to the named state through its write pipeline.
func (g *Graph) Write(name string, v ir.Value) *state.Future[error] {
	node, found := g.nodes[name]
	if !found {
		return state.Resolved[error](fmt.Errorf("unknown state %q", name))
	}
	w, writable := node.(WritableNode)
	if !writable {
		return state.Resolved[error](&state.WriteError{
			Reason: fmt.Sprintf("state %q is read-only", name),
			Code:   state.CodeNotWritable,
		})
	}
	if _, isArray := g.arrays[name]; isArray {
		if _, isList := v.(ir.List); !isList {
			return state.Resolved[error](&state.WriteError{
				Reason: fmt.Sprintf("array %q needs a list, got %s", name, ir.KindOf(v)),
				Code:   state.CodeInvalid,
			})
		}
	}
	return w.Write(v)
}

// Set replaces the value of a state the graph owns, bypassing the write
// pipeline. Derived and proxy states have no value of their own.
func (g *Graph) Set(name string, v Result) error {
	if arr, isArray := g.arrays[name]; isArray {
		if v.IsErr() {
			arr.SetErr(v.Error())
			return nil
		}
		list, isList := v.Value().(ir.List)
		if !isList {
			return fmt.Errorf("array %q needs a list, got %s", name, ir.KindOf(v.Value()))
		}
		arr.Set(list)
		return nil
	}
	if r, isResource := g.resources[name]; isResource {
		r.UpdateResource(v)
		return nil
	}
	node, found := g.nodes[name]
	if !found {
		return fmt.Errorf("unknown state %q", name)
	}
	o, isOwned := node.(owned)
	if !isOwned {
		return fmt.Errorf("state %q has no value of its own", name)
	}
	o.Set(v)
	return nil
}
