package ir

import (
	"encoding/json"
	"fmt"
)

// State kinds a graph can declare.
const (
	StateSync     = "sync"
	StateLazy     = "lazy"
	StateDelayed  = "delayed"
	StateDerived  = "derived"
	StateProxy    = "proxy"
	StateArray    = "array"
	StateResource = "resource"
)

// ValidStateKinds lists the accepted StateSpec.Kind values.
var ValidStateKinds = map[string]bool{
	StateSync:     true,
	StateLazy:     true,
	StateDelayed:  true,
	StateDerived:  true,
	StateProxy:    true,
	StateArray:    true,
	StateResource: true,
}

// Resource backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendBolt      = "bolt"
	BackendFile      = "file"
	BackendHTTP      = "http"
	BackendWebSocket = "websocket"
)

// ValidBackends lists the accepted ResourceSpec.Backend values.
var ValidBackends = map[string]bool{
	BackendMemory:    true,
	BackendSQLite:    true,
	BackendBolt:      true,
	BackendFile:      true,
	BackendHTTP:      true,
	BackendWebSocket: true,
}

// GraphSpec is a compiled graph definition. States appear in declaration
// order. Inputs and sources may name any state of the graph.
type GraphSpec struct {
	Name   string      `json:"name"`
	States []StateSpec `json:"states"`
}

// State returns the state named name.
func (g *GraphSpec) State(name string) (StateSpec, bool) {
	for _, s := range g.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateSpec{}, false
}

// StateSpec declares one state.
type StateSpec struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	// Initial is the starting value of sync, lazy, delayed and array
	// states, and the seed of memory resources.
	Initial Value `json:"initial"`

	Writable bool `json:"writable,omitempty"`

	// DelayMS is how long a delayed state waits before resolving.
	DelayMS int64 `json:"delay_ms,omitempty"`

	// Inputs name the states a derived state combines.
	Inputs []string `json:"inputs,omitempty"`
	// Combine names the derived combiner; empty passes the first input.
	Combine string `json:"combine,omitempty"`

	// Source names the state a proxy mirrors.
	Source string `json:"source,omitempty"`
	// Transform names the proxy's read transform.
	Transform string `json:"transform,omitempty"`

	// Min and Max clamp written integers.
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
	// Check names a validity check applied to writes.
	Check string `json:"check,omitempty"`

	Resource *ResourceSpec `json:"resource,omitempty"`
}

// ResourceSpec binds a resource state to a backend.
type ResourceSpec struct {
	Backend string `json:"backend"`
	// Key selects the cell within sqlite and bolt stores.
	Key string `json:"key,omitempty"`
	// Path is the file watched by file resources.
	Path string `json:"path,omitempty"`
	// URL is the endpoint of http and websocket resources.
	URL string `json:"url,omitempty"`

	DebounceMS    int64 `json:"debounce_ms,omitempty"`
	TimeoutMS     int64 `json:"timeout_ms,omitempty"`
	RetentionMS   int64 `json:"retention_ms,omitempty"`
	WriteBounceMS int64 `json:"write_bounce_ms,omitempty"`
	// PollMS is the refresh period of polling backends while connected.
	PollMS int64 `json:"poll_ms,omitempty"`
}

type stateSpecJSON StateSpec

// MarshalJSON writes a null initial value for states without one.
func (s StateSpec) MarshalJSON() ([]byte, error) {
	out := stateSpecJSON(s)
	if out.Initial == nil {
		out.Initial = Null{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the initial value through the strict Value decoder.
func (s *StateSpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		stateSpecJSON
		Initial json.RawMessage `json:"initial"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = StateSpec(raw.stateSpecJSON)
	s.Initial = Null{}
	if len(raw.Initial) > 0 {
		v, err := Unmarshal(raw.Initial)
		if err != nil {
			return fmt.Errorf("state %q initial: %w", s.Name, err)
		}
		s.Initial = v
	}
	return nil
}
