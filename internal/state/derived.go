package state

import (
	"fmt"

	"github.com/roach88/statewire/internal/loop"
	"github.com/roach88/statewire/internal/metrics"
)

// Combiner computes a derived value from the latest result of every input,
// in input order.
type Combiner[IN, OUT, E any] func(values []Result[IN, E]) Result[OUT, E]

type derivedStatus int

const (
	derivedIdle derivedStatus = iota
	derivedConnecting
	derivedReady
	derivedRecomputing
)

func (s derivedStatus) String() string {
	switch s {
	case derivedIdle:
		return "idle"
	case derivedConnecting:
		return "connecting"
	case derivedReady:
		return "ready"
	case derivedRecomputing:
		return "recomputing"
	default:
		return fmt.Sprintf("derivedStatus(%d)", int(s))
	}
}

// Derived is a read-only state computed from N input states.
//
// While subscribed it holds one subscription per input. It emits its first
// value once every input has delivered at least once, then recomputes at most
// once per deferred step no matter how many inputs changed. While
// unsubscribed, Then collects each input once and combines the results.
type Derived[IN, OUT, E any] struct {
	container[OUT, E]

	sched   loop.Scheduler
	inputs  []Readable[IN, E]
	combine Combiner[IN, OUT, E]

	status  derivedStatus
	gen     int
	waiting int
	seen    []bool
	buffer  []Result[IN, E]
	links   []*Callback[IN, E]
}

// NewDerived creates a state combining inputs with combine. A nil combine
// passes the first input's value through.
func NewDerived[IN, OUT, E any](sched loop.Scheduler, combine func(values []Result[IN, E]) Result[OUT, E], inputs []Readable[IN, E], opts ...Option) *Derived[IN, OUT, E] {
	d := &Derived[IN, OUT, E]{
		sched:   sched,
		inputs:  append([]Readable[IN, E](nil), inputs...),
		combine: combine,
	}
	d.init("derived", opts)
	d.onFirst = d.connect
	d.onLast = d.disconnect
	return d
}

// NewCollected creates a derived state that mirrors the first of inputs.
func NewCollected[T, E any](sched loop.Scheduler, inputs ...Readable[T, E]) *Derived[T, T, E] {
	return NewDerived[T, T, E](sched, nil, inputs)
}

// Then delivers the current combined value once.
func (d *Derived[IN, OUT, E]) Then(fn func(Result[OUT, E])) {
	switch d.status {
	case derivedReady:
		fn(d.value)
	case derivedConnecting, derivedRecomputing:
		d.enqueueRead(fn)
	default:
		d.enqueueRead(fn)
		if len(d.pending) == 1 {
			d.collectOnce()
		}
	}
}

// SetStates replaces the inputs. A subscribed state reconnects and emits a
// fresh value once the new inputs are ready.
func (d *Derived[IN, OUT, E]) SetStates(inputs ...Readable[IN, E]) {
	d.rewire(func() { d.inputs = append([]Readable[IN, E](nil), inputs...) })
}

// SetGetter replaces the combiner.
func (d *Derived[IN, OUT, E]) SetGetter(combine Combiner[IN, OUT, E]) {
	d.rewire(func() { d.combine = combine })
}

// Inputs returns the current inputs.
func (d *Derived[IN, OUT, E]) Inputs() []Readable[IN, E] {
	return d.inputs
}

func (d *Derived[IN, OUT, E]) rewire(change func()) {
	if !d.InUse() {
		change()
		return
	}
	pending := d.pending
	d.pending = nil
	d.disconnect()
	d.pending = pending
	change()
	d.connect()
}

func (d *Derived[IN, OUT, E]) connect() {
	d.gen++
	gen := d.gen

	switch n := len(d.inputs); n {
	case 0:
		d.status = derivedReady
		d.emit(readErr[OUT, E](CodeNoStates, "No states registered"))
	case 1:
		d.status = derivedConnecting
		d.links = []*Callback[IN, E]{NewCallback(func(r Result[IN, E]) {
			if gen != d.gen {
				return
			}
			d.status = derivedReady
			d.emit(d.compute([]Result[IN, E]{r}))
		})}
		d.inputs[0].Subscribe(d.links[0], true)
	default:
		d.status = derivedConnecting
		d.waiting = n
		d.seen = make([]bool, n)
		d.buffer = make([]Result[IN, E], n)
		d.links = make([]*Callback[IN, E], n)
		for i := range d.inputs {
			d.links[i] = NewCallback(func(r Result[IN, E]) {
				if gen != d.gen {
					return
				}
				d.onInput(i, r)
			})
		}
		links := d.links
		for i, in := range d.inputs {
			if gen != d.gen {
				return
			}
			in.Subscribe(links[i], true)
		}
	}
}

func (d *Derived[IN, OUT, E]) onInput(i int, r Result[IN, E]) {
	d.buffer[i] = r
	switch d.status {
	case derivedConnecting:
		if !d.seen[i] {
			d.seen[i] = true
			d.waiting--
		}
		if d.waiting == 0 {
			d.status = derivedReady
			d.emit(d.compute(d.buffer))
		}
	case derivedReady:
		d.status = derivedRecomputing
		gen := d.gen
		d.sched.Defer(func() { d.recompute(gen) })
	}
}

func (d *Derived[IN, OUT, E]) recompute(gen int) {
	if gen != d.gen || d.status != derivedRecomputing {
		return
	}
	metrics.Recomputes.Inc()
	d.status = derivedReady
	d.emit(d.compute(d.buffer))
}

// emit caches v, answers parked reads and notifies subscribers.
func (d *Derived[IN, OUT, E]) emit(v Result[OUT, E]) {
	d.value = v
	d.hasValue = true
	d.fulfill(v)
	d.updateSubscribers(v)
}

func (d *Derived[IN, OUT, E]) disconnect() {
	d.gen++
	for i, link := range d.links {
		if i < len(d.inputs) && link != nil {
			d.inputs[i].Unsubscribe(link)
		}
	}
	d.links = nil
	d.seen = nil
	d.buffer = nil
	d.waiting = 0
	d.status = derivedIdle
	d.hasValue = false

	var zero Result[OUT, E]
	d.value = zero

	if len(d.pending) > 0 {
		d.collectOnce()
	}
}

// collectOnce reads every input once and answers parked reads.
func (d *Derived[IN, OUT, E]) collectOnce() {
	n := len(d.inputs)
	if n == 0 {
		d.fulfill(readErr[OUT, E](CodeNoStates, "No states registered"))
		return
	}

	gen := d.gen
	values := make([]Result[IN, E], n)
	remaining := n
	for i, in := range d.inputs {
		in.Then(func(r Result[IN, E]) {
			values[i] = r
			remaining--
			if remaining == 0 && gen == d.gen {
				d.fulfill(d.compute(values))
			}
		})
	}
}

func (d *Derived[IN, OUT, E]) compute(values []Result[IN, E]) Result[OUT, E] {
	if d.combine == nil {
		return firstInput[IN, OUT, E](values)
	}

	snapshot := append([]Result[IN, E](nil), values...)
	var out Result[OUT, E]
	if d.guard("combiner", func() { out = d.combine(snapshot) }) {
		return readErr[OUT, E](CodePanic, fmt.Sprintf("combiner of %s panicked", d.opts.name))
	}
	return out
}

func firstInput[IN, OUT, E any](values []Result[IN, E]) Result[OUT, E] {
	first := values[0]
	if first.IsErr() {
		return Err[OUT](first.Error())
	}
	v, ok := any(first.Value()).(OUT)
	if !ok {
		return readErr[OUT, E](CodeNoCombiner, fmt.Sprintf("cannot pass %T through without a combiner", first.Value()))
	}
	return Ok[OUT, E](v)
}
