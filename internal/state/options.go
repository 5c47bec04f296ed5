package state

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
)

var stateSeq atomic.Uint64

// Option configures a state at construction.
type Option func(*options)

type options struct {
	name     string
	logger   *slog.Logger
	related  func() map[string]any
	equal    any
	setter   any
	writable bool
	limit    any
	check    any
}

// WithName sets the name used in logs and traces.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger used for diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRelated attaches metadata returned by Related.
func WithRelated(fn func() map[string]any) Option {
	return func(o *options) {
		o.related = fn
	}
}

// WithEqual overrides the value equality used to suppress no-op writes and
// unchanged resource updates. Defaults to reflect.DeepEqual.
func WithEqual[T any](eq func(a, b T) bool) Option {
	return func(o *options) {
		o.equal = eq
	}
}

// WithSetter makes a state writable through fn. fn receives the checked value
// and the current result and returns the next result, or false to skip the
// write.
func WithSetter[T, E any](fn func(value T, prev Result[T, E]) (Result[T, E], bool)) Option {
	return func(o *options) {
		o.setter = fn
	}
}

// WithPassThrough makes a state writable with a pass-through setter that skips
// writes equal to the current value.
func WithPassThrough() Option {
	return func(o *options) {
		o.writable = true
	}
}

// WithLimit clamps written values before they are checked.
func WithLimit[T any](fn func(T) T) Option {
	return func(o *options) {
		o.limit = fn
	}
}

// WithCheck validates written values. fn returns "" for a valid value and a
// reason otherwise.
func WithCheck[T any](fn func(T) string) Option {
	return func(o *options) {
		o.check = fn
	}
}

func buildOptions(kind string, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = fmt.Sprintf("%s#%d", kind, stateSeq.Add(1))
	}
	return o
}

func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.Default()
}

// typedOption extracts an option value stored untyped. A mismatched type is a
// wiring mistake: it is logged and the option ignored.
func typedOption[F any](o *options, what string, v any) (F, bool) {
	var zero F
	if v == nil {
		return zero, false
	}
	fn, ok := v.(F)
	if !ok {
		o.log().Warn("ignoring option with mismatched type",
			"state", o.name,
			"option", what,
			"got", reflect.TypeOf(v).String(),
			"want", reflect.TypeOf(zero).String(),
		)
		return zero, false
	}
	return fn, true
}

func deepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

func equalFor[T any](o *options) func(a, b T) bool {
	if eq, ok := typedOption[func(a, b T) bool](o, "equal", o.equal); ok {
		return eq
	}
	return deepEqual[T]
}
