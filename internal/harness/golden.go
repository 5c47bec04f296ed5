package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statewire/internal/ir"
)

// TraceSnapshot is the part of a run compared against golden files.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario"`
	Trace        []TraceEvent `json:"trace"`
}

// toValue converts the snapshot to an ir.Value so it serializes through
// ir.MarshalCanonical.
func (s *TraceSnapshot) toValue() ir.Value {
	trace := make(ir.List, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.Object{
			"seq":   ir.Int(event.Seq),
			"type":  ir.String(event.Type),
			"state": ir.String(event.State),
		}
		if event.Value != nil {
			obj["value"] = event.Value
		}
		if event.Error != "" {
			obj["error"] = ir.String(event.Error)
		}
		if event.Patch != "" {
			obj["patch"] = ir.String(event.Patch)
		}
		trace[i] = obj
	}
	return ir.Object{
		"scenario": ir.String(s.ScenarioName),
		"trace":    trace,
	}
}

// MarshalTrace renders the trace of result as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toValue())
}

// RunWithGolden runs scenario and compares its trace against
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the trace of an existing result against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
