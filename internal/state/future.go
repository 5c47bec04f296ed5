package state

// Future is a one-shot value settled on the scheduler thread. Continuations
// registered before settlement run exactly once, in registration order, when
// it settles; continuations registered afterwards run immediately.
//
// Future is not safe for concurrent use; use Spawn to produce one from a
// background goroutine.
type Future[T any] struct {
	settled bool
	value   T
	waiters []func(T)
}

// NewFuture creates an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{}
}

// Resolved creates a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	return &Future[T]{settled: true, value: v}
}

// Resolve settles the future. Returns false if it was already settled.
func (f *Future[T]) Resolve(v T) bool {
	if f.settled {
		return false
	}
	f.settled = true
	f.value = v

	waiters := f.waiters
	f.waiters = nil
	for _, w := range waiters {
		w(v)
	}
	return true
}

// Then registers a continuation.
func (f *Future[T]) Then(fn func(T)) {
	if f.settled {
		fn(f.value)
		return
	}
	f.waiters = append(f.waiters, fn)
}

// Settled reports whether the future has a value.
func (f *Future[T]) Settled() bool {
	return f.settled
}

// Value returns the settled value and whether the future is settled.
func (f *Future[T]) Value() (T, bool) {
	return f.value, f.settled
}
