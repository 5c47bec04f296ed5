package state

import (
	"fmt"
	"reflect"
)

// Result is the envelope every state read produces: Ok(value) or Err(error).
// The zero Result is Ok with the zero value.
type Result[T, E any] struct {
	value T
	err   E
	isErr bool
}

// Ok wraps a value.
func Ok[T, E any](v T) Result[T, E] {
	return Result[T, E]{value: v}
}

// Err wraps an error.
func Err[T, E any](e E) Result[T, E] {
	return Result[T, E]{err: e, isErr: true}
}

// IsOk reports whether the result carries a value.
func (r Result[T, E]) IsOk() bool { return !r.isErr }

// IsErr reports whether the result carries an error.
func (r Result[T, E]) IsErr() bool { return r.isErr }

// Value returns the value, or the zero value for an Err result.
func (r Result[T, E]) Value() T { return r.value }

// Error returns the error, or the zero error for an Ok result.
func (r Result[T, E]) Error() E { return r.err }

// Unwrap returns the value and whether the result is Ok.
func (r Result[T, E]) Unwrap() (T, bool) { return r.value, !r.isErr }

// OrElse returns the value, or fallback for an Err result.
func (r Result[T, E]) OrElse(fallback T) T {
	if r.isErr {
		return fallback
	}
	return r.value
}

func (r Result[T, E]) String() string {
	if r.isErr {
		return fmt.Sprintf("Err(%v)", r.err)
	}
	return fmt.Sprintf("Ok(%v)", r.value)
}

// Map transforms the value of an Ok result and passes Err through.
func Map[T, U, E any](r Result[T, E], fn func(T) U) Result[U, E] {
	if r.isErr {
		return Err[U](r.err)
	}
	return Ok[U, E](fn(r.value))
}

// sameResult compares two results, using eq for values.
func sameResult[T, E any](a, b Result[T, E], eq func(x, y T) bool) bool {
	if a.isErr != b.isErr {
		return false
	}
	if a.isErr {
		return reflect.DeepEqual(a.err, b.err)
	}
	return eq(a.value, b.value)
}

// Never is the error type of states that cannot fail. No code in this package
// constructs an Err result carrying a Never.
type Never struct {
	_ [0]func()
}

func (Never) Error() string { return "never" }

// OkResult is the envelope of guaranteed-ok states.
type OkResult[T any] = Result[T, Never]

// Error codes carried by ReadError and WriteError.
const (
	// CodeNotWritable: write on a state without a setter.
	CodeNotWritable = "NWR"
	// CodeInvalid: value rejected by the state's check.
	CodeInvalid = "INV"
	// CodeNoStates: derived state with zero inputs.
	CodeNoStates = "NSR"
	// CodeNoCombiner: derived state whose default combiner cannot convert its input.
	CodeNoCombiner = "NCB"
	// CodePanic: producer or connector panicked.
	CodePanic = "PAN"
	// CodeUnavailable: the backing resource could not be reached.
	CodeUnavailable = "UNA"
	// CodeTimeout: the backing resource did not answer in time.
	CodeTimeout = "TMO"
)

// ReadError explains why a state has no value.
type ReadError struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

func (e ReadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// NewReadError builds a ReadError.
func NewReadError(code, reason string) ReadError {
	return ReadError{Reason: reason, Code: code}
}

// WriteError explains why a write was refused. A state can be unreadable but
// writable, or the reverse, so the two error shapes are kept apart.
type WriteError struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func errNotWritable() *WriteError {
	return &WriteError{Reason: "state not writable", Code: CodeNotWritable}
}

// readErr builds Err(ReadError{...}) when E is ReadError. For any other error
// type there is no way to build an E, so the zero Result is returned.
func readErr[T, E any](code, reason string) Result[T, E] {
	var e E
	if p, ok := any(&e).(*ReadError); ok {
		*p = NewReadError(code, reason)
		return Err[T](e)
	}
	if p, ok := any(&e).(*error); ok {
		*p = NewReadError(code, reason)
		return Err[T](e)
	}
	var zero Result[T, E]
	return zero
}
