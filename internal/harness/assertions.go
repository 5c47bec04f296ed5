package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/statewire/internal/ir"
)

// AssertionError is returned when an assertion fails. It carries the whole
// trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", event)
	}
	return buf.String()
}

// String renders an event on one line: "[seq] type state detail".
func (ev TraceEvent) String() string {
	line := fmt.Sprintf("[%d] %s %s", ev.Seq, ev.Type, ev.State)
	if ev.Value != nil {
		line += " " + ir.Format(ev.Value)
	}
	if ev.Patch != "" {
		line += " (" + ev.Patch + ")"
	}
	if ev.Error != "" {
		line += " error " + ev.Error
	}
	return line
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertNotifyCount:
		return assertCount(result.Trace, Assertion{Type: a.Type, Event: EventNotify, State: a.State, Count: a.Count})
	case AssertEventCount:
		return assertCount(result.Trace, a)
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertFinalValue:
		return assertFinalValue(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matches reports whether ev has the assertion's event type and, when
// given, its state.
func matches(ev TraceEvent, event, state string) bool {
	return ev.Type == event && (state == "" || ev.State == state)
}

func assertCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Event, a.State) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s events%s", a.Count, a.Event, onState(a.State)),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    trace,
	}
}

// assertTraceContains looks for an event of the given type whose value and
// error match the assertion. An unset value or error matches anything.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	var want ir.Value
	if a.Value != nil {
		v, err := ir.FromAny(a.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		want = v
	}

	for _, ev := range trace {
		if !matches(ev, a.Event, a.State) {
			continue
		}
		if a.Error != "" && ev.Error != a.Error {
			continue
		}
		if want != nil && (ev.Value == nil || !ir.Equal(want, ev.Value)) {
			continue
		}
		return nil
	}

	expected := a.Event + onState(a.State)
	if want != nil {
		expected += " with value " + ir.Format(want)
	}
	if a.Error != "" {
		expected += " with error " + a.Error
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   "no matching event",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed events occur in the trace in the
// given relative order. Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next == len(a.Events) {
			break
		}
		event, state, err := splitOrderEntry(a.Events[next])
		if err != nil {
			return err
		}
		if matches(ev, event, state) {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: strings.Join(a.Events, " -> "),
		Actual:   fmt.Sprintf("%q not found after %d matched events", a.Events[next], next),
		Trace:    trace,
	}
}

// splitOrderEntry parses "<event> <state>"; the state may be omitted.
func splitOrderEntry(entry string) (event, state string, err error) {
	fields := strings.Fields(entry)
	switch len(fields) {
	case 1:
		event = fields[0]
	case 2:
		event, state = fields[0], fields[1]
	default:
		return "", "", fmt.Errorf("trace_order entry %q must be \"<event> [state]\"", entry)
	}
	if !validEvents[event] {
		return "", "", fmt.Errorf("unknown event %q", event)
	}
	return event, state, nil
}

func assertFinalValue(result *Result, a Assertion) error {
	actual, found := result.Final[a.State]
	if !found {
		return fmt.Errorf("unknown state %q", a.State)
	}

	expected := a.Error
	if expected == "" {
		v, err := ir.FromAny(a.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		expected = ir.Format(v)
	}
	if actual == expected {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s = %s", a.State, expected),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

func onState(state string) string {
	if state == "" {
		return ""
	}
	return " on " + state
}
