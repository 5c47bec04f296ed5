package state

// Callback receives a state's results. Subscriptions are keyed by the
// *Callback pointer, so keep the pointer to unsubscribe later.
type Callback[T, E any] struct {
	fn func(Result[T, E])
}

// NewCallback wraps fn for subscription.
func NewCallback[T, E any](fn func(Result[T, E])) *Callback[T, E] {
	return &Callback[T, E]{fn: fn}
}

// Readable is the read side shared by every state.
type Readable[T, E any] interface {
	// Subscribe registers cb. With deliverCurrent, cb receives the current
	// value immediately when one exists, or as soon as one is produced.
	// Subscribing the same callback twice is a no-op.
	Subscribe(cb *Callback[T, E], deliverCurrent bool) *Callback[T, E]

	// Unsubscribe removes cb. Unknown callbacks are ignored.
	Unsubscribe(cb *Callback[T, E]) *Callback[T, E]

	// Then delivers the current value exactly once, immediately when it is
	// known and otherwise when it becomes available.
	Then(fn func(Result[T, E]))

	// InUse reports whether the state has at least one subscriber.
	InUse() bool

	// Related returns metadata attached to the state, if any.
	Related() (map[string]any, bool)

	// Name identifies the state in logs.
	Name() string
}

// Writable is a state that accepts writes.
type Writable[T, E any] interface {
	Readable[T, E]

	// Write requests a value change. The returned future settles with nil
	// when the write was accepted, or with the reason it was refused.
	Write(v T) *Future[error]

	// WriteSync requests a value change and reports refusal immediately.
	// States whose write completes later report only synchronous refusals.
	WriteSync(v T) error

	// Limit clamps v to the state's accepted range.
	Limit(v T) T

	// Check returns "" when v is acceptable, otherwise a reason.
	Check(v T) string
}

// Getter is implemented by states whose value is synchronously available.
type Getter[T, E any] interface {
	Get() Result[T, E]
}
