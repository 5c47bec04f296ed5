package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/statewire/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrEmptyName        = "E100" // graph or state name missing
	ErrDuplicateName    = "E101" // two states share a name
	ErrInvalidKind      = "E102" // unknown state kind
	ErrUnknownReference = "E103" // input or source names no state
	ErrMissingField     = "E104" // a field the kind needs is absent
	ErrUnknownFunction  = "E105" // combine, transform or check not known
	ErrInvalidBackend   = "E106" // unknown resource backend
	ErrInvalidLimits    = "E107" // min above max, or limits on a non-integer state
	ErrInvalidInitial   = "E108" // initial value does not fit the kind
	ErrCycle            = "E109" // states depend on each other
	ErrIgnoredField     = "E110" // field has no meaning for the kind
)

// ValidationError is a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled graph. It returns every problem found rather
// than stopping at the first.
func Validate(spec *ir.GraphSpec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(spec.Name) == "" {
		add("name", ErrEmptyName, "graph name is required")
	}

	names := make(map[string]bool, len(spec.States))
	for i, st := range spec.States {
		if strings.TrimSpace(st.Name) == "" {
			add(fmt.Sprintf("states[%d].name", i), ErrEmptyName, "state name is required")
			continue
		}
		if names[st.Name] {
			add(fmt.Sprintf("states.%s", st.Name), ErrDuplicateName, "duplicate state name: %q", st.Name)
		}
		names[st.Name] = true
	}

	for _, st := range spec.States {
		field := func(f string) string { return fmt.Sprintf("states.%s.%s", st.Name, f) }

		if !ir.ValidStateKinds[st.Kind] {
			add(field("kind"), ErrInvalidKind, "invalid kind %q", st.Kind)
			continue
		}

		for _, in := range st.Inputs {
			if !names[in] {
				add(field("inputs"), ErrUnknownReference, "unknown state %q", in)
			}
		}
		if st.Source != "" && !names[st.Source] {
			add(field("source"), ErrUnknownReference, "unknown state %q", st.Source)
		}

		switch st.Kind {
		case ir.StateDerived:
			if st.Combine != "" {
				if _, ok := combiners[st.Combine]; !ok {
					add(field("combine"), ErrUnknownFunction, "unknown combiner %q", st.Combine)
				}
			}
		case ir.StateProxy:
			if st.Source == "" {
				add(field("source"), ErrMissingField, "proxy needs a source")
			}
			if st.Transform != "" {
				if _, ok := transforms[st.Transform]; !ok {
					add(field("transform"), ErrUnknownFunction, "unknown transform %q", st.Transform)
				}
			}
		case ir.StateArray:
			if _, ok := st.Initial.(ir.List); !ok && ir.KindOf(st.Initial) != ir.KindNull {
				add(field("initial"), ErrInvalidInitial, "array initial must be a list")
			}
		case ir.StateResource:
			if st.Resource == nil {
				add(field("backend"), ErrMissingField, "resource needs a backend")
				break
			}
			if !ir.ValidBackends[st.Resource.Backend] {
				add(field("backend"), ErrInvalidBackend, "invalid backend %q", st.Resource.Backend)
			}
			switch st.Resource.Backend {
			case ir.BackendFile:
				if st.Resource.Path == "" {
					add(field("path"), ErrMissingField, "file backend needs a path")
				}
			case ir.BackendHTTP, ir.BackendWebSocket:
				if st.Resource.URL == "" {
					add(field("url"), ErrMissingField, "%s backend needs a url", st.Resource.Backend)
				}
			}
		}

		if st.Kind != ir.StateDerived && (len(st.Inputs) > 0 || st.Combine != "") {
			add(field("inputs"), ErrIgnoredField, "only derived states take inputs")
		}
		if st.Kind != ir.StateProxy && (st.Source != "" || st.Transform != "") {
			add(field("source"), ErrIgnoredField, "only proxy states take a source")
		}
		if st.Kind != ir.StateDelayed && st.DelayMS != 0 {
			add(field("delay"), ErrIgnoredField, "only delayed states take a delay")
		}

		if st.Check != "" {
			if _, ok := checks[st.Check]; !ok {
				add(field("check"), ErrUnknownFunction, "unknown check %q", st.Check)
			}
		}
		if st.Min != nil && st.Max != nil && *st.Min > *st.Max {
			add(field("min"), ErrInvalidLimits, "min %d is above max %d", *st.Min, *st.Max)
		}
		if (st.Min != nil || st.Max != nil) && st.Kind == ir.StateArray {
			add(field("min"), ErrInvalidLimits, "limits apply to integer states, not arrays")
		}
	}

	for _, c := range AnalyzeCycles(spec) {
		add(fmt.Sprintf("states.%s", c.Path[0]), ErrCycle, "%s", c.Message)
	}

	return errs
}
