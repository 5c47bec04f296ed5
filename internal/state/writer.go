package state

import "github.com/roach88/statewire/internal/metrics"

// writer holds the write policy shared by states that own their value.
type writer[T, E any] struct {
	setter func(T, Result[T, E]) (Result[T, E], bool)
	limit  func(T) T
	check  func(T) string
	equal  func(a, b T) bool
}

func newWriter[T, E any](o *options) writer[T, E] {
	w := writer[T, E]{equal: equalFor[T](o)}
	if fn, ok := typedOption[func(T, Result[T, E]) (Result[T, E], bool)](o, "setter", o.setter); ok {
		w.setter = fn
	} else if o.writable {
		w.setter = passThrough[T, E](w.equal)
	}
	if fn, ok := typedOption[func(T) T](o, "limit", o.limit); ok {
		w.limit = fn
	}
	if fn, ok := typedOption[func(T) string](o, "check", o.check); ok {
		w.check = fn
	}
	return w
}

// passThrough accepts any value and skips writes equal to the current one.
func passThrough[T, E any](equal func(a, b T) bool) func(T, Result[T, E]) (Result[T, E], bool) {
	return func(v T, prev Result[T, E]) (Result[T, E], bool) {
		if prev.IsOk() && equal(prev.Value(), v) {
			return prev, false
		}
		return Ok[T, E](v), true
	}
}

// Limit clamps v to the accepted range.
func (w *writer[T, E]) Limit(v T) T {
	if w.limit == nil {
		return v
	}
	return w.limit(v)
}

// Check returns "" when v is acceptable, otherwise a reason.
func (w *writer[T, E]) Check(v T) string {
	if w.check == nil {
		return ""
	}
	return w.check(v)
}

// prepare runs the write pipeline: writable, limit, check, setter. The
// returned next result is meaningful only when apply is true.
func (w *writer[T, E]) prepare(v T, prev Result[T, E]) (next Result[T, E], apply bool, err error) {
	if w.setter == nil {
		metrics.WriteRejections.WithLabelValues(CodeNotWritable).Inc()
		return prev, false, errNotWritable()
	}
	v = w.Limit(v)
	if reason := w.Check(v); reason != "" {
		metrics.WriteRejections.WithLabelValues(CodeInvalid).Inc()
		return prev, false, &WriteError{Reason: reason, Code: CodeInvalid}
	}
	next, apply = w.setter(v, prev)
	return next, apply, nil
}
