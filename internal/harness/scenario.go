package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario drives a state graph through a list of steps and checks the
// resulting trace.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Graph is the CUE graph definition to build. Relative paths are
	// resolved against the scenario file's directory.
	Graph string `yaml:"graph"`

	// Steps run in order on a manual scheduler.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final values.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpSet         = "set"
	OpWrite       = "write"
	OpAwait       = "await"
	OpFlush       = "flush"
	OpAdvance     = "advance"
	OpPush        = "push"
	OpPop         = "pop"
	OpShift       = "shift"
	OpUnshift     = "unshift"
	OpSplice      = "splice"
	OpRemoveAll   = "remove_all"
)

var validOps = map[string]bool{
	OpSubscribe:   true,
	OpUnsubscribe: true,
	OpSet:         true,
	OpWrite:       true,
	OpAwait:       true,
	OpFlush:       true,
	OpAdvance:     true,
	OpPush:        true,
	OpPop:         true,
	OpShift:       true,
	OpUnshift:     true,
	OpSplice:      true,
	OpRemoveAll:   true,
}

// Step is one scenario action.
type Step struct {
	// Op is the operation to perform.
	Op string `yaml:"op"`

	// State names the state the operation targets. Unused by flush and
	// advance.
	State string `yaml:"state,omitempty"`

	// Value is the value written or set, or the element remove_all drops.
	Value any `yaml:"value,omitempty"`

	// Values are the elements push, unshift and splice insert.
	Values []any `yaml:"values,omitempty"`

	// Error makes set put the state in error instead of setting Value.
	Error *ErrorValue `yaml:"error,omitempty"`

	// Start and Delete position a splice.
	Start  int `yaml:"start,omitempty"`
	Delete int `yaml:"delete,omitempty"`

	// Duration is how far advance moves virtual time ("250ms", "2s").
	Duration string `yaml:"duration,omitempty"`

	// Expect checks the outcome of a write or an await.
	Expect *Expect `yaml:"expect,omitempty"`
}

// ErrorValue is a read error given in YAML.
type ErrorValue struct {
	Code   string `yaml:"code"`
	Reason string `yaml:"reason,omitempty"`
}

// Expect is the expected outcome of a step. An empty Error expects success;
// for awaits the delivered value must then equal Value.
type Expect struct {
	Value any    `yaml:"value,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final values.
type Assertion struct {
	// Type is one of notify_count, trace_contains, trace_order,
	// final_value, event_count.
	Type string `yaml:"type"`

	// State names the state the assertion looks at. Required by
	// notify_count and final_value, optional filter elsewhere.
	State string `yaml:"state,omitempty"`

	// Event is the trace event type (trace_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Value is the expected value (trace_contains, final_value).
	Value any `yaml:"value,omitempty"`

	// Error is the expected error code (trace_contains, final_value).
	Error string `yaml:"error,omitempty"`

	// Count is the expected number of matching events.
	Count int `yaml:"count,omitempty"`

	// Events is the expected relative order (trace_order). Each entry is
	// "<event> <state>", for example "setup stock".
	Events []string `yaml:"events,omitempty"`
}

// Assertion types.
const (
	AssertNotifyCount   = "notify_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertFinalValue    = "final_value"
	AssertEventCount    = "event_count"
)

// LoadScenario reads and parses a scenario YAML file. The graph path is
// resolved against the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// the graph path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) && basePath != "" {
		scenario.Graph = filepath.Join(basePath, scenario.Graph)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario without touching the
// filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if !validOps[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.Op {
	case OpFlush:
		return nil
	case OpAdvance:
		if step.Duration == "" {
			return fmt.Errorf("advance requires 'duration'")
		}
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("advance: duration must not be negative")
		}
		return nil
	}

	if step.State == "" {
		return fmt.Errorf("%s requires 'state'", step.Op)
	}
	switch step.Op {
	case OpPush, OpUnshift:
		if len(step.Values) == 0 {
			return fmt.Errorf("%s requires 'values'", step.Op)
		}
	case OpSplice:
		if step.Start < 0 || step.Delete < 0 {
			return fmt.Errorf("splice: start and delete must not be negative")
		}
	case OpSet:
		if step.Error != nil && step.Error.Code == "" {
			return fmt.Errorf("set: error requires 'code'")
		}
	}
	if step.Expect != nil && step.Op != OpWrite && step.Op != OpAwait {
		return fmt.Errorf("%s does not take 'expect'", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertNotifyCount:
		if a.State == "" {
			return fmt.Errorf("notify_count requires 'state'")
		}
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("trace_contains requires 'event'")
		}
		if !validEvents[a.Event] {
			return fmt.Errorf("unknown event %q", a.Event)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("trace_order requires at least 2 events")
		}
		for _, e := range a.Events {
			if _, _, err := splitOrderEntry(e); err != nil {
				return err
			}
		}
	case AssertFinalValue:
		if a.State == "" {
			return fmt.Errorf("final_value requires 'state'")
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("event_count requires 'event'")
		}
		if !validEvents[a.Event] {
			return fmt.Errorf("unknown event %q", a.Event)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	return nil
}
