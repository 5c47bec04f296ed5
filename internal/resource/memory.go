package resource

import (
	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// Memory is an in-process source. Every Cell connected to it sees pushes and
// writes synchronously, which makes it the backend of choice for
// deterministic tests.
type Memory struct {
	value     ir.Value
	connected []*Cell
	// OnEvent, when set, observes connector calls ("fetch", "setup",
	// "teardown", "write").
	OnEvent func(event string)
}

// NewMemory creates a source holding initial.
func NewMemory(initial ir.Value) *Memory {
	if initial == nil {
		initial = ir.Null{}
	}
	return &Memory{value: initial}
}

// Value returns the source's current value.
func (m *Memory) Value() ir.Value {
	return m.value
}

// Connected reports how many cells hold a live connection.
func (m *Memory) Connected() int {
	return len(m.connected)
}

// Push changes the source and forwards the value to connected cells.
func (m *Memory) Push(v ir.Value) {
	m.value = v
	for _, r := range append([]*Cell(nil), m.connected...) {
		r.UpdateResource(ok(v))
	}
}

// Fail forwards an error to connected cells without changing the value.
func (m *Memory) Fail(code, reason string) {
	res := state.Err[ir.Value](state.NewReadError(code, reason))
	for _, r := range append([]*Cell(nil), m.connected...) {
		r.UpdateResource(res)
	}
}

func (m *Memory) emit(event string) {
	if m.OnEvent != nil {
		m.OnEvent(event)
	}
}

func (m *Memory) SingleGet(r *Cell) {
	m.emit("fetch")
	r.UpdateResource(ok(m.value))
}

func (m *Memory) SetupConnection(r *Cell) {
	m.emit("setup")
	m.connected = append(m.connected, r)
	r.UpdateResource(ok(m.value))
}

func (m *Memory) TeardownConnection(r *Cell) {
	m.emit("teardown")
	for i, c := range m.connected {
		if c == r {
			m.connected = append(m.connected[:i], m.connected[i+1:]...)
			return
		}
	}
}

func (m *Memory) WriteAction(r *Cell, v ir.Value) *state.Future[error] {
	m.emit("write")
	m.Push(v)
	return state.Resolved[error](nil)
}

var _ Connector = (*Memory)(nil)
