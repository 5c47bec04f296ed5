package state

import "fmt"

// Lazy is a state whose initial value is produced on first access.
type Lazy[T, E any] struct {
	container[T, E]
	writer[T, E]

	producer func() Result[T, E]
	computed bool
}

// NewLazy creates a state whose value is produced by producer the first time
// it is read, subscribed or written.
func NewLazy[T, E any](producer func() Result[T, E], opts ...Option) *Lazy[T, E] {
	s := &Lazy[T, E]{producer: producer}
	s.init("lazy", opts)
	s.writer = newWriter[T, E](&s.opts)
	s.request = func(cb *Callback[T, E]) {
		s.ensure()
		s.deliver(cb, s.value)
	}
	return s
}

func (s *Lazy[T, E]) ensure() {
	if s.computed {
		return
	}
	s.computed = true

	var v Result[T, E]
	if s.guard("producer", func() { v = s.producer() }) {
		v = readErr[T, E](CodePanic, fmt.Sprintf("producer of %s panicked", s.opts.name))
	}
	s.value = v
	s.hasValue = true
}

// Computed reports whether the producer has run.
func (s *Lazy[T, E]) Computed() bool {
	return s.computed
}

// Get returns the current value, producing it if needed.
func (s *Lazy[T, E]) Get() Result[T, E] {
	s.ensure()
	return s.value
}

// GetOk returns the current value, or the zero value on error.
func (s *Lazy[T, E]) GetOk() T {
	return s.Get().Value()
}

// Then calls fn with the current value, producing it if needed.
func (s *Lazy[T, E]) Then(fn func(Result[T, E])) {
	fn(s.Get())
}

// Set replaces the value and notifies subscribers. The producer never runs
// once a value has been set.
func (s *Lazy[T, E]) Set(v Result[T, E]) {
	s.computed = true
	s.publish(v)
}

// SetOk replaces the value with Ok(v).
func (s *Lazy[T, E]) SetOk(v T) {
	s.Set(Ok[T, E](v))
}

// SetErr replaces the value with Err(e).
func (s *Lazy[T, E]) SetErr(e E) {
	s.Set(Err[T](e))
}

// Write runs the write pipeline and settles immediately.
func (s *Lazy[T, E]) Write(v T) *Future[error] {
	return Resolved(s.WriteSync(v))
}

// WriteSync runs the write pipeline against the produced value.
func (s *Lazy[T, E]) WriteSync(v T) error {
	next, apply, err := s.prepare(v, s.Get())
	if err != nil {
		return err
	}
	if apply {
		s.publish(next)
	}
	return nil
}
