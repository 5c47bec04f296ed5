package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// Result is what graph nodes deliver.
type Result = state.Result[ir.Value, state.ReadError]

func ok(v ir.Value) Result {
	return state.Ok[ir.Value, state.ReadError](v)
}

func invalid(format string, args ...any) Result {
	return state.Err[ir.Value](state.NewReadError(state.CodeInvalid, fmt.Sprintf(format, args...)))
}

// firstErr returns the first failed input.
func firstErr(values []Result) (Result, bool) {
	for _, v := range values {
		if v.IsErr() {
			return v, true
		}
	}
	return Result{}, false
}

// ints unwraps integer inputs for the arithmetic combiners.
func ints(name string, values []Result) ([]int64, Result, bool) {
	if e, failed := firstErr(values); failed {
		return nil, e, false
	}
	out := make([]int64, len(values))
	for i, v := range values {
		n, isInt := ir.AsInt(v.Value())
		if !isInt {
			return nil, invalid("%s: input %d is %s, not an integer", name, i, ir.KindOf(v.Value())), false
		}
		out[i] = n
	}
	return out, Result{}, true
}

type combiner func(values []Result) Result

var combiners = map[string]combiner{
	"first": func(values []Result) Result {
		return values[0]
	},
	"sum": func(values []Result) Result {
		ns, e, good := ints("sum", values)
		if !good {
			return e
		}
		var total int64
		for _, n := range ns {
			total += n
		}
		return ok(ir.Int(total))
	},
	"product": func(values []Result) Result {
		ns, e, good := ints("product", values)
		if !good {
			return e
		}
		total := int64(1)
		for _, n := range ns {
			total *= n
		}
		return ok(ir.Int(total))
	},
	"min": func(values []Result) Result {
		ns, e, good := ints("min", values)
		if !good {
			return e
		}
		out := ns[0]
		for _, n := range ns[1:] {
			out = min(out, n)
		}
		return ok(ir.Int(out))
	},
	"max": func(values []Result) Result {
		ns, e, good := ints("max", values)
		if !good {
			return e
		}
		out := ns[0]
		for _, n := range ns[1:] {
			out = max(out, n)
		}
		return ok(ir.Int(out))
	},
	"concat": concat,
	"count": func(values []Result) Result {
		if e, failed := firstErr(values); failed {
			return e
		}
		var n int64
		for _, v := range values {
			if ir.Truthy(v.Value()) {
				n++
			}
		}
		return ok(ir.Int(n))
	},
	"all": func(values []Result) Result {
		if e, failed := firstErr(values); failed {
			return e
		}
		for _, v := range values {
			if !ir.Truthy(v.Value()) {
				return ok(ir.Bool(false))
			}
		}
		return ok(ir.Bool(true))
	},
	"any": func(values []Result) Result {
		if e, failed := firstErr(values); failed {
			return e
		}
		for _, v := range values {
			if ir.Truthy(v.Value()) {
				return ok(ir.Bool(true))
			}
		}
		return ok(ir.Bool(false))
	},
	"list": func(values []Result) Result {
		if e, failed := firstErr(values); failed {
			return e
		}
		out := make(ir.List, len(values))
		for i, v := range values {
			out[i] = v.Value()
		}
		return ok(out)
	},
}

// concat joins lists when every input is a list, and otherwise joins the
// text of every input.
func concat(values []Result) Result {
	if e, failed := firstErr(values); failed {
		return e
	}

	allLists := true
	for _, v := range values {
		if _, isList := v.Value().(ir.List); !isList {
			allLists = false
			break
		}
	}
	if allLists {
		out := ir.List{}
		for _, v := range values {
			out = append(out, v.Value().(ir.List)...)
		}
		return ok(out)
	}

	var b strings.Builder
	for _, v := range values {
		b.WriteString(text(v.Value()))
	}
	return ok(ir.String(b.String()))
}

func text(v ir.Value) string {
	if s, isStr := v.(ir.String); isStr {
		return string(s)
	}
	return ir.Format(v)
}

func combinerFor(name string) (combiner, error) {
	if name == "" {
		name = "first"
	}
	fn, found := combiners[name]
	if !found {
		return nil, fmt.Errorf("unknown combiner %q", name)
	}
	return fn, nil
}

// transform maps one value; inverse is the name of the transform that
// undoes it, empty when the transform cannot be reversed.
type transform struct {
	apply   func(ir.Value) (ir.Value, error)
	inverse string
}

func intTransform(name string, fn func(int64) int64) func(ir.Value) (ir.Value, error) {
	return func(v ir.Value) (ir.Value, error) {
		n, isInt := v.(ir.Int)
		if !isInt {
			return nil, fmt.Errorf("%s: %s is not an integer", name, ir.KindOf(v))
		}
		return ir.Int(fn(int64(n))), nil
	}
}

var transforms = map[string]transform{
	"identity": {
		apply:   func(v ir.Value) (ir.Value, error) { return v, nil },
		inverse: "identity",
	},
	"negate": {
		apply:   intTransform("negate", func(n int64) int64 { return -n }),
		inverse: "negate",
	},
	"double": {
		apply:   intTransform("double", func(n int64) int64 { return n * 2 }),
		inverse: "halve",
	},
	"halve": {
		apply:   intTransform("halve", func(n int64) int64 { return n / 2 }),
		inverse: "double",
	},
	"not": {
		apply:   func(v ir.Value) (ir.Value, error) { return ir.Bool(!ir.Truthy(v)), nil },
		inverse: "not",
	},
	"string": {
		apply: func(v ir.Value) (ir.Value, error) { return ir.String(text(v)), nil },
	},
	"len": {
		apply: func(v ir.Value) (ir.Value, error) {
			n, hasLen := ir.Len(v)
			if !hasLen {
				return nil, fmt.Errorf("len: %s has no length", ir.KindOf(v))
			}
			return ir.Int(n), nil
		},
	},
}

func transformFor(name string) (transform, error) {
	if name == "" {
		name = "identity"
	}
	t, found := transforms[name]
	if !found {
		return transform{}, fmt.Errorf("unknown transform %q", name)
	}
	return t, nil
}

// readTransform lifts t to results. Errors pass through untouched.
func readTransform(t transform) func(Result) Result {
	return func(r Result) Result {
		if r.IsErr() {
			return r
		}
		v, err := t.apply(r.Value())
		if err != nil {
			return invalid("%v", err)
		}
		return ok(v)
	}
}

// writeTransform maps a written value back through t's inverse. Values the
// inverse cannot map are passed on unchanged for the upstream check to judge.
func writeTransform(t transform) func(ir.Value) ir.Value {
	if t.inverse == "" {
		return nil
	}
	inv := transforms[t.inverse]
	return func(v ir.Value) ir.Value {
		out, err := inv.apply(v)
		if err != nil {
			return v
		}
		return out
	}
}

var checks = map[string]func(ir.Value) string{
	"nonnegative": func(v ir.Value) string {
		n, isInt := v.(ir.Int)
		if !isInt {
			return fmt.Sprintf("expected an integer, got %s", ir.KindOf(v))
		}
		if n < 0 {
			return fmt.Sprintf("%d is negative", n)
		}
		return ""
	},
	"nonempty": func(v ir.Value) string {
		n, hasLen := ir.Len(v)
		if !hasLen {
			return fmt.Sprintf("expected a string, list or object, got %s", ir.KindOf(v))
		}
		if n == 0 {
			return "value is empty"
		}
		return ""
	},
}

// clamp limits integers to [lo, hi]. Other values pass through.
func clamp(lo, hi *int64) func(ir.Value) ir.Value {
	if lo == nil && hi == nil {
		return nil
	}
	return func(v ir.Value) ir.Value {
		n, isInt := v.(ir.Int)
		if !isInt {
			return v
		}
		if lo != nil && int64(n) < *lo {
			return ir.Int(*lo)
		}
		if hi != nil && int64(n) > *hi {
			return ir.Int(*hi)
		}
		return v
	}
}
