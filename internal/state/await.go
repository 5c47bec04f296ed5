package state

import (
	"context"
	"errors"

	"github.com/roach88/statewire/internal/loop"
)

// ErrSchedulerClosed is returned when work cannot be posted to the scheduler.
var ErrSchedulerClosed = errors.New("scheduler closed")

// Await reads s from a goroutine other than the scheduler's. It posts the
// read onto sched and blocks until the value arrives or ctx is done.
func Await[T, E any](ctx context.Context, sched loop.Scheduler, s Readable[T, E]) (Result[T, E], error) {
	var zero Result[T, E]
	ch := make(chan Result[T, E], 1)
	if !sched.Post(func() {
		s.Then(func(r Result[T, E]) {
			select {
			case ch <- r:
			default:
			}
		})
	}) {
		return zero, ErrSchedulerClosed
	}

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// AwaitWrite writes v from a goroutine other than the scheduler's and blocks
// until the write settles or ctx is done.
func AwaitWrite[T, E any](ctx context.Context, sched loop.Scheduler, w Writable[T, E], v T) error {
	ch := make(chan error, 1)
	if !sched.Post(func() {
		w.Write(v).Then(func(err error) { ch <- err })
	}) {
		return ErrSchedulerClosed
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn runs fn on its own goroutine and returns a future settled on sched
// with its result. The future is dropped if sched is closed first.
func Spawn[T any](sched loop.Scheduler, fn func() T) *Future[T] {
	f := NewFuture[T]()
	go func() {
		v := fn()
		sched.Post(func() { f.Resolve(v) })
	}()
	return f
}
