// Package harness runs YAML scenarios against state graphs.
//
// A scenario builds a graph from a CUE file on a manual scheduler, drives it
// step by step and records what subscribers saw. Nothing happens in real
// time: timers fire only on advance, and deferred recomputations run only on
// flush or advance. Every run of a scenario therefore produces the same
// trace, which can be compared against a golden file.
//
// # Scenario Format
//
//	name: derived_batching
//	description: "Two input writes produce one recomputation"
//	graph: counter.cue
//	steps:
//	  - op: subscribe
//	    state: sum
//	  - op: write
//	    state: a
//	    value: 5
//	  - op: write
//	    state: b
//	    value: 10
//	    expect: { }
//	  - op: flush
//	  - op: advance
//	    duration: 100ms
//	  - op: await
//	    state: later
//	    expect: { value: "ready" }
//	assertions:
//	  - type: notify_count
//	    state: sum
//	    count: 2
//	  - type: final_value
//	    state: sum
//	    value: 15
//
// # Steps
//
//   - subscribe, unsubscribe: attach or detach a recording subscriber
//   - set: replace a state's value, or put it in error with error: {code: ...}
//   - write: write through the state's write pipeline
//   - await: read the state once
//   - flush: run deferred steps and posted tasks
//   - advance: move virtual time, firing due timers
//   - push, pop, shift, unshift, splice, remove_all: array patches
//
// # Trace Events
//
// notify, await and write_result carry the value or the error code.
// setup, teardown, fetch and write_action come from memory resources and
// name the memory key.
//
// # Assertion Types
//
//   - notify_count: number of notifications a state delivered
//   - event_count: number of events of a type, optionally for one state
//   - trace_contains: an event with the given type, state, value or error
//   - trace_order: events appear in the given relative order
//   - final_value: the value or error code of a state after the last step
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of the trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
