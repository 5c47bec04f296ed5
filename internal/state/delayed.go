package state

import "fmt"

type queuedWrite[T any] struct {
	value T
	done  *Future[error]
}

// Delayed is a state whose initial value arrives asynchronously. Reads and
// writes issued before the value arrives are held and replayed in order.
type Delayed[T, E any] struct {
	container[T, E]
	writer[T, E]

	producer func() *Future[Result[T, E]]
	started  bool
	writes   []queuedWrite[T]
}

// NewDelayed creates a state initialised by producer. The producer runs on
// the first read, subscription or write.
func NewDelayed[T, E any](producer func() *Future[Result[T, E]], opts ...Option) *Delayed[T, E] {
	s := &Delayed[T, E]{producer: producer}
	s.init("delayed", opts)
	s.writer = newWriter[T, E](&s.opts)
	s.onFirst = s.start
	s.request = func(*Callback[T, E]) { s.start() }
	return s
}

// NewDelayedValue creates a delayed state resolved with v once the future
// returned by wait settles.
func NewDelayedValue[T, E any](wait func() *Future[T], opts ...Option) *Delayed[T, E] {
	return NewDelayed(func() *Future[Result[T, E]] {
		out := NewFuture[Result[T, E]]()
		wait().Then(func(v T) { out.Resolve(Ok[T, E](v)) })
		return out
	}, opts...)
}

func (s *Delayed[T, E]) start() {
	if s.started {
		return
	}
	s.started = true

	var f *Future[Result[T, E]]
	if s.guard("producer", func() { f = s.producer() }) || f == nil {
		s.resolve(readErr[T, E](CodePanic, fmt.Sprintf("producer of %s failed", s.opts.name)))
		return
	}
	f.Then(s.resolve)
}

// resolve installs the initial value, answers parked reads, notifies every
// current subscriber once and replays parked writes.
func (s *Delayed[T, E]) resolve(v Result[T, E]) {
	if s.hasValue {
		return
	}
	s.value = v
	s.hasValue = true
	s.fulfill(v)
	s.updateSubscribers(v)

	writes := s.writes
	s.writes = nil
	for _, w := range writes {
		w.done.Resolve(s.writeNow(w.value))
	}
}

// Resolved reports whether the initial value has arrived.
func (s *Delayed[T, E]) Resolved() bool {
	return s.hasValue
}

// Then delivers the value once it is known.
func (s *Delayed[T, E]) Then(fn func(Result[T, E])) {
	if s.hasValue {
		fn(s.value)
		return
	}
	s.enqueueRead(fn)
	s.start()
}

// Set replaces the value and notifies subscribers. Setting before the
// initial value arrives resolves the state and discards the producer result.
func (s *Delayed[T, E]) Set(v Result[T, E]) {
	if !s.hasValue {
		s.started = true
		s.resolve(v)
		return
	}
	s.publish(v)
}

// Write applies v now when the value is known, otherwise after it arrives.
func (s *Delayed[T, E]) Write(v T) *Future[error] {
	if s.hasValue {
		return Resolved(s.writeNow(v))
	}
	if s.setter == nil {
		return Resolved[error](errNotWritable())
	}
	done := NewFuture[error]()
	s.writes = append(s.writes, queuedWrite[T]{value: v, done: done})
	s.start()
	return done
}

// WriteSync is Write without waiting. Writes parked until initialisation
// report nil here and their outcome through Write's future.
func (s *Delayed[T, E]) WriteSync(v T) error {
	f := s.Write(v)
	if err, ok := f.Value(); ok {
		return err
	}
	return nil
}

func (s *Delayed[T, E]) writeNow(v T) error {
	next, apply, err := s.prepare(v, s.value)
	if err != nil {
		return err
	}
	if apply {
		s.publish(next)
	}
	return nil
}
