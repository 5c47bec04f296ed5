package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/statewire/internal/ir"
)

// CompileFile reads and compiles a CUE graph definition.
func CompileFile(path string) (*ir.GraphSpec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return CompileSource(path, src)
}

// CompileSource compiles a CUE graph definition. filename is used for
// positions and as the default graph name.
//
// A definition looks like:
//
//	name: "counter"
//	states: {
//		count: {kind: "sync", initial: 0, writable: true, min: 0}
//		doubled: {kind: "proxy", source: "count", transform: "double"}
//	}
func CompileSource(filename string, src []byte) (*ir.GraphSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v, strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
}

// CompileValue compiles an already-built CUE value. defaultName is used when
// the definition has no name field.
func CompileValue(v cue.Value, defaultName string) (*ir.GraphSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.GraphSpec{Name: defaultName}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Name = name
	}

	statesVal := v.LookupPath(cue.ParsePath("states"))
	if !statesVal.Exists() {
		return nil, &CompileError{
			Field:   "states",
			Message: "states is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := statesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		st, err := compileState(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.States = append(spec.States, st)
	}

	if len(spec.States) == 0 {
		return nil, &CompileError{
			Field:   "states",
			Message: "at least one state is required",
			Pos:     statesVal.Pos(),
		}
	}
	return spec, nil
}

// stateFields lists the fields a state block may carry.
var stateFields = map[string]bool{
	"kind": true, "initial": true, "writable": true, "delay": true,
	"inputs": true, "combine": true, "source": true, "transform": true,
	"min": true, "max": true, "check": true,
	"backend": true, "key": true, "path": true, "url": true,
	"debounce": true, "timeout": true, "retention": true, "writebounce": true, "poll": true,
}

func compileState(name string, v cue.Value) (ir.StateSpec, error) {
	st := ir.StateSpec{Name: name, Initial: ir.Null{}}
	field := func(f string) string { return fmt.Sprintf("states.%s.%s", name, f) }

	iter, err := v.Fields()
	if err != nil {
		return st, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !stateFields[label] {
			return st, &CompileError{
				Field:   field(label),
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	if st.Kind, err = lookupString(v, "kind", field); err != nil {
		return st, err
	}
	if st.Kind == "" {
		return st, &CompileError{Field: field("kind"), Message: "kind is required", Pos: v.Pos()}
	}

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		st.Initial, err = toValue(initVal, field("initial"))
		if err != nil {
			return st, err
		}
	}

	if w := v.LookupPath(cue.ParsePath("writable")); w.Exists() {
		st.Writable, err = w.Bool()
		if err != nil {
			return st, formatCUEError(err)
		}
	}

	if st.DelayMS, err = lookupDuration(v, "delay", field); err != nil {
		return st, err
	}

	if in := v.LookupPath(cue.ParsePath("inputs")); in.Exists() {
		list, err := in.List()
		if err != nil {
			return st, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return st, formatCUEError(err)
			}
			st.Inputs = append(st.Inputs, s)
		}
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"combine", &st.Combine},
		{"source", &st.Source},
		{"transform", &st.Transform},
		{"check", &st.Check},
	}
	for _, s := range strs {
		if *s.dst, err = lookupString(v, s.name, field); err != nil {
			return st, err
		}
	}

	if st.Min, err = lookupInt(v, "min", field); err != nil {
		return st, err
	}
	if st.Max, err = lookupInt(v, "max", field); err != nil {
		return st, err
	}

	if st.Kind == ir.StateResource {
		st.Resource, err = compileResource(v, field)
		if err != nil {
			return st, err
		}
	}
	return st, nil
}

func compileResource(v cue.Value, field func(string) string) (*ir.ResourceSpec, error) {
	rs := &ir.ResourceSpec{}
	var err error

	strs := []struct {
		name string
		dst  *string
	}{
		{"backend", &rs.Backend},
		{"key", &rs.Key},
		{"path", &rs.Path},
		{"url", &rs.URL},
	}
	for _, s := range strs {
		if *s.dst, err = lookupString(v, s.name, field); err != nil {
			return nil, err
		}
	}
	if rs.Backend == "" {
		rs.Backend = ir.BackendMemory
	}

	durations := []struct {
		name string
		dst  *int64
	}{
		{"debounce", &rs.DebounceMS},
		{"timeout", &rs.TimeoutMS},
		{"retention", &rs.RetentionMS},
		{"writebounce", &rs.WriteBounceMS},
		{"poll", &rs.PollMS},
	}
	for _, d := range durations {
		if *d.dst, err = lookupDuration(v, d.name, field); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func lookupString(v cue.Value, name string, field func(string) string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: field(name), Message: "must be a string", Pos: f.Pos()}
	}
	return s, nil
}

func lookupInt(v cue.Value, name string, field func(string) string) (*int64, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	n, err := f.Int64()
	if err != nil {
		return nil, &CompileError{Field: field(name), Message: "must be an integer", Pos: f.Pos()}
	}
	return &n, nil
}

// lookupDuration accepts a duration string ("150ms") or an integer number of
// milliseconds, and returns milliseconds.
func lookupDuration(v cue.Value, name string, field func(string) string) (int64, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, nil
	}
	if n, err := f.Int64(); err == nil {
		if n < 0 {
			return 0, &CompileError{Field: field(name), Message: "must not be negative", Pos: f.Pos()}
		}
		return n, nil
	}
	s, err := f.String()
	if err != nil {
		return 0, &CompileError{Field: field(name), Message: "must be a duration string or milliseconds", Pos: f.Pos()}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{Field: field(name), Message: err.Error(), Pos: f.Pos()}
	}
	if d < 0 {
		return 0, &CompileError{Field: field(name), Message: "must not be negative", Pos: f.Pos()}
	}
	return d.Milliseconds(), nil
}

// toValue converts a concrete CUE value. Floats are rejected.
func toValue(v cue.Value, field string) (ir.Value, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "integer out of range", Pos: v.Pos()}
		}
		return ir.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			item, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			item, err := toValue(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = item
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "floats are not allowed, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
