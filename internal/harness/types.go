package harness

import (
	"errors"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// Trace event types.
const (
	EventNotify      = "notify"
	EventAwait       = "await"
	EventSetup       = "setup"
	EventTeardown    = "teardown"
	EventFetch       = "fetch"
	EventWriteAction = "write_action"
	EventWriteResult = "write_result"
)

var validEvents = map[string]bool{
	EventNotify:      true,
	EventAwait:       true,
	EventSetup:       true,
	EventTeardown:    true,
	EventFetch:       true,
	EventWriteAction: true,
	EventWriteResult: true,
}

// TraceEvent is one observation made while a scenario ran.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Type  string `json:"type"`
	State string `json:"state"`
	// Value is the delivered value, or the value a write carried.
	Value ir.Value `json:"value,omitempty"`
	// Error is the error code of a failed read or write.
	Error string `json:"error,omitempty"`
	// Patch describes the array patch of an array notification.
	Patch string `json:"patch,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every observation in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the value of every state after the last step, read once.
	// Failed reads are stored as their error code.
	Final map[string]string `json:"final,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]string),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends an event for res.
func (r *Result) add(seq int64, typ, name string, res state.Result[ir.Value, state.ReadError]) {
	ev := TraceEvent{Seq: seq, Type: typ, State: name}
	if res.IsErr() {
		ev.Error = res.Error().Code
	} else {
		ev.Value = valueOrNull(res.Value())
	}
	r.Trace = append(r.Trace, ev)
}

// addWrite appends the outcome of a write of v.
func (r *Result) addWrite(seq int64, name string, v ir.Value, err error) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   seq,
		Type:  EventWriteResult,
		State: name,
		Value: valueOrNull(v),
		Error: errorCode(err),
	})
}

// errorCode returns the code of a WriteError, or the message of any other
// error. nil becomes "".
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var we *state.WriteError
	if errors.As(err, &we) {
		return we.Code
	}
	return err.Error()
}

func valueOrNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
