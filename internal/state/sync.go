package state

// Sync is a state whose value is always synchronously known.
type Sync[T, E any] struct {
	container[T, E]
	writer[T, E]
}

// NewSync creates a state holding initial. It is read-only unless built with
// Writable or WithSetter.
func NewSync[T, E any](initial Result[T, E], opts ...Option) *Sync[T, E] {
	s := &Sync[T, E]{}
	s.init("sync", opts)
	s.writer = newWriter[T, E](&s.opts)
	s.value = initial
	s.hasValue = true
	return s
}

// NewOk creates a guaranteed-ok state holding v.
func NewOk[T any](v T, opts ...Option) *Sync[T, Never] {
	return NewSync(Ok[T, Never](v), opts...)
}

// Get returns the current value.
func (s *Sync[T, E]) Get() Result[T, E] {
	return s.value
}

// GetOk returns the current value, or the zero value when the state holds an
// error.
func (s *Sync[T, E]) GetOk() T {
	return s.value.Value()
}

// Then calls fn with the current value.
func (s *Sync[T, E]) Then(fn func(Result[T, E])) {
	fn(s.value)
}

// Set replaces the value and notifies subscribers. Set is the owner's API and
// bypasses the write pipeline.
func (s *Sync[T, E]) Set(v Result[T, E]) {
	s.publish(v)
}

// SetOk replaces the value with Ok(v).
func (s *Sync[T, E]) SetOk(v T) {
	s.publish(Ok[T, E](v))
}

// SetErr replaces the value with Err(e).
func (s *Sync[T, E]) SetErr(e E) {
	s.publish(Err[T](e))
}

// Write runs the write pipeline and settles immediately.
func (s *Sync[T, E]) Write(v T) *Future[error] {
	return Resolved(s.WriteSync(v))
}

// WriteSync runs the write pipeline.
func (s *Sync[T, E]) WriteSync(v T) error {
	next, apply, err := s.prepare(v, s.value)
	if err != nil {
		return err
	}
	if apply {
		s.publish(next)
	}
	return nil
}
