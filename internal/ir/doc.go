// Package ir defines the intermediate representation shared by the graph
// compiler, the scenario harness and the storage layer.
//
// It holds two things: the dynamically typed Value model that flows through
// graph states, and the GraphSpec that a compiled graph definition lowers
// to. ir imports nothing internal, so every other package can depend on it.
//
// Constraints on values:
//   - integers only, no floats; arithmetic combiners stay exact and golden
//     output stays byte-stable
//   - object keys serialize in RFC 8785 order (UTF-16 code units)
//   - strings are NFC-normalized at the serialization boundary
//   - all JSON tags use snake_case
package ir
