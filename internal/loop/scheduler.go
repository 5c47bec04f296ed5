package loop

import "time"

// Timer is a cancellable pending callback created by Scheduler.AfterFunc.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Scheduler is the cooperative executor states are bound to.
//
// Defer and AfterFunc must be called from the scheduler's own thread (inside a
// task). Post is safe from any goroutine and is the only way for off-loop work
// (network, disk) to hand results back to states.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// Defer queues fn for the next deferred execution step.
	Defer(fn func())

	// AfterFunc runs fn on the scheduler after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer

	// Post enqueues fn as a task. Returns false if the scheduler is closed.
	Post(fn func()) bool
}
