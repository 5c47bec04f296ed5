// Package graph compiles CUE state-graph definitions and builds them into
// live states.
//
// A definition names its states under "states". Each state has a kind
// (sync, lazy, delayed, derived, proxy, array or resource) and the fields
// that kind uses:
//
//	states: {
//		price: {kind: "sync", initial: 3, writable: true, min: 0}
//		qty:   {kind: "sync", initial: 2, writable: true, check: "nonnegative"}
//		total: {kind: "derived", inputs: ["price", "qty"], combine: "product"}
//		label: {kind: "proxy", source: "total", transform: "string"}
//		items: {kind: "array", initial: [], writable: true}
//		stock: {kind: "resource", backend: "sqlite", key: "stock", poll: "1s"}
//	}
//
// CompileFile turns a definition into an ir.GraphSpec, Validate reports
// every problem in it, and Build instantiates the states on a scheduler.
//
// Combiners: first (default), sum, product, min, max, concat, count, all,
// any, list. Transforms: identity (default), negate, not, double, halve,
// string, len. The first five can be reversed, so a proxy using one may be
// writable. Checks: nonnegative, nonempty.
package graph
