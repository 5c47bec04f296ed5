package harness

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/statewire/internal/graph"
	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/resource"
	"github.com/roach88/statewire/internal/state"
	"github.com/roach88/statewire/internal/testutil"
)

// pendingValue marks a final read that never completed.
const pendingValue = "<pending>"

// Harness runs one scenario against a freshly built graph on a manual
// scheduler. Memory resources are observed so their connector calls show up
// in the trace; other backends are built but not traced.
type Harness struct {
	graph  *graph.Graph
	sched  *testutil.ManualScheduler
	clock  *testutil.DeterministicClock
	env    *resource.Env
	logger *slog.Logger
	result *Result

	subs      map[string]func()
	recording bool
	unsettled map[int]string
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes engine diagnostics to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run compiles the scenario's graph and executes the scenario.
//
// Execution flow:
//  1. Compile and build the graph on a manual scheduler
//  2. Run the steps in order, recording the trace
//  3. Flush pending work and read every state once
//  4. Evaluate the assertions
//
// Step expectations and assertions that fail are reported in the result;
// the returned error is reserved for scenarios that cannot run.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	if err := checkGraphExists(scenario); err != nil {
		return nil, err
	}
	spec, err := graph.CompileFile(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph: %w", err)
	}
	return RunSpec(scenario, spec, opts...)
}

// RunSpec executes the scenario against an already compiled graph.
// scenario.Graph is ignored.
func RunSpec(scenario *Scenario, spec *ir.GraphSpec, opts ...Option) (*Result, error) {
	h := &Harness{
		sched:     testutil.NewManualScheduler(),
		clock:     testutil.NewDeterministicClock(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:    NewResult(),
		subs:      make(map[string]func()),
		recording: true,
		unsettled: make(map[int]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.env = &resource.Env{Logger: h.logger}

	g, err := graph.Build(spec, h.sched, h.env, graph.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	h.graph = g
	h.observeMemories(spec)

	for i, step := range scenario.Steps {
		if err := h.execute(i, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		h.logger.Debug("step completed", "scenario", scenario.Name, "step", i, "op", step.Op, "state", step.State)
	}
	h.sched.Flush()

	for i := range scenario.Steps {
		if name, found := h.unsettled[i]; found {
			h.result.AddError(fmt.Sprintf("steps[%d]: %s on %q never settled", i, scenario.Steps[i].Op, name))
		}
	}

	h.recording = false
	h.readFinal()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// observeMemories hooks every memory source so its connector calls are
// traced. Events name the memory key, which defaults to the state name.
func (h *Harness) observeMemories(spec *ir.GraphSpec) {
	for _, st := range spec.States {
		if st.Kind != ir.StateResource || st.Resource == nil || st.Resource.Backend != ir.BackendMemory {
			continue
		}
		key := st.Resource.Key
		if key == "" {
			key = st.Name
		}
		m, found := h.env.LookupMemory(key)
		if !found || m.OnEvent != nil {
			continue
		}
		m.OnEvent = func(event string) {
			if event == "write" {
				event = EventWriteAction
			}
			h.record(TraceEvent{Type: event, State: key})
		}
	}
}

func (h *Harness) record(ev TraceEvent) {
	if !h.recording {
		return
	}
	ev.Seq = h.clock.Next()
	h.result.Trace = append(h.result.Trace, ev)
}

func (h *Harness) recordResult(typ, name string, res graph.Result) {
	if !h.recording {
		return
	}
	h.result.add(h.clock.Next(), typ, name, res)
}

func (h *Harness) execute(i int, step Step) error {
	switch step.Op {
	case OpFlush:
		h.sched.Flush()
		return nil
	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.sched.Advance(d)
		return nil
	case OpSubscribe:
		return h.subscribe(step.State)
	case OpUnsubscribe:
		unsubscribe, found := h.subs[step.State]
		if !found {
			return fmt.Errorf("state %q is not subscribed", step.State)
		}
		delete(h.subs, step.State)
		unsubscribe()
		return nil
	case OpSet:
		return h.set(step)
	case OpWrite:
		return h.write(i, step)
	case OpAwait:
		return h.await(i, step)
	default:
		return h.patch(step)
	}
}

func (h *Harness) subscribe(name string) error {
	if _, found := h.subs[name]; found {
		return fmt.Errorf("state %q is already subscribed", name)
	}

	if arr, isArray := h.graph.Array(name); isArray {
		cb := state.NewCallback(func(r state.Result[state.ArrayRead[ir.Value], state.ReadError]) {
			if !h.recording {
				return
			}
			ev := TraceEvent{Seq: h.clock.Next(), Type: EventNotify, State: name}
			if r.IsErr() {
				ev.Error = r.Error().Code
			} else {
				read := r.Value()
				ev.Value = ir.List(append([]ir.Value{}, read.Array...))
				if read.Type != state.PatchNone {
					ev.Patch = fmt.Sprintf("%s@%d", read.Type, read.Index)
				}
			}
			h.result.Trace = append(h.result.Trace, ev)
		})
		h.subs[name] = func() { arr.Unsubscribe(cb) }
		arr.Subscribe(cb, true)
		return nil
	}

	node, found := h.graph.Node(name)
	if !found {
		return fmt.Errorf("unknown state %q", name)
	}
	cb := state.NewCallback(func(r graph.Result) {
		h.recordResult(EventNotify, name, r)
	})
	h.subs[name] = func() { node.Unsubscribe(cb) }
	node.Subscribe(cb, true)
	return nil
}

func (h *Harness) set(step Step) error {
	if step.Error != nil {
		res := state.Err[ir.Value](state.NewReadError(step.Error.Code, step.Error.Reason))
		return h.graph.Set(step.State, res)
	}
	v, err := ir.FromAny(step.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	return h.graph.Set(step.State, state.Ok[ir.Value, state.ReadError](v))
}

func (h *Harness) write(i int, step Step) error {
	if _, found := h.graph.Node(step.State); !found {
		return fmt.Errorf("unknown state %q", step.State)
	}
	v, err := ir.FromAny(step.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	name := step.State
	h.unsettled[i] = name
	h.graph.Write(name, v).Then(func(err error) {
		delete(h.unsettled, i)
		if h.recording {
			h.result.addWrite(h.clock.Next(), name, v, err)
		}
		if step.Expect != nil {
			h.expect(i, step.Expect, nil, errorCode(err), false)
		}
	})
	return nil
}

func (h *Harness) await(i int, step Step) error {
	node, found := h.graph.Node(step.State)
	if !found {
		return fmt.Errorf("unknown state %q", step.State)
	}

	name := step.State
	h.unsettled[i] = name
	node.Then(func(r graph.Result) {
		delete(h.unsettled, i)
		h.recordResult(EventAwait, name, r)
		if step.Expect == nil {
			return
		}
		code := ""
		if r.IsErr() {
			code = r.Error().Code
		}
		h.expect(i, step.Expect, r.Value(), code, true)
	})
	return nil
}

// expect compares a settled step outcome with its expectation.
func (h *Harness) expect(i int, exp *Expect, got ir.Value, code string, checkValue bool) {
	switch {
	case exp.Error != "":
		if code != exp.Error {
			h.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s", i, exp.Error, describe(got, code)))
		}
	case code != "":
		h.result.AddError(fmt.Sprintf("steps[%d]: expected success, got error %s", i, code))
	case checkValue:
		want, err := ir.FromAny(exp.Value)
		if err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: expected value: %v", i, err))
			return
		}
		if !ir.Equal(want, got) {
			h.result.AddError(fmt.Sprintf("steps[%d]: expected %s, got %s", i, ir.Format(want), ir.Format(got)))
		}
	}
}

// patch runs the array operations.
func (h *Harness) patch(step Step) error {
	arr, isArray := h.graph.Array(step.State)
	if !isArray {
		return fmt.Errorf("state %q is not an array", step.State)
	}
	values, err := toValues(step.Values)
	if err != nil {
		return err
	}

	switch step.Op {
	case OpPush:
		arr.Push(values...)
	case OpPop:
		arr.Pop()
	case OpShift:
		arr.Shift()
	case OpUnshift:
		arr.Unshift(values...)
	case OpSplice:
		arr.Splice(step.Start, step.Delete, values...)
	case OpRemoveAll:
		v, err := ir.FromAny(step.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		arr.RemoveAllOf(v)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// readFinal reads every state once. Reads still parked after a flush are
// reported as pending.
func (h *Harness) readFinal() {
	for _, name := range h.graph.Names() {
		node, _ := h.graph.Node(name)
		h.result.Final[name] = pendingValue
		node.Then(func(r graph.Result) {
			h.result.Final[name] = describeResult(r)
		})
	}
	h.sched.Flush()
}

func toValues(raw []any) ([]ir.Value, error) {
	out := make([]ir.Value, len(raw))
	for i, item := range raw {
		v, err := ir.FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// describeResult renders a result the way Final stores it: canonical JSON for
// values, the bare code for errors.
func describeResult(r graph.Result) string {
	if r.IsErr() {
		return r.Error().Code
	}
	return ir.Format(r.Value())
}

func describe(v ir.Value, code string) string {
	if code != "" {
		return "error " + code
	}
	return ir.Format(v)
}
