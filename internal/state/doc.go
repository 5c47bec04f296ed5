// Package state implements reactive state containers that propagate values
// to subscribers.
//
// # Results
//
// Every read yields a Result: Ok(value) or Err(error). Failure is a value
// like any other and flows to subscribers through the same channel. States
// that cannot fail use Never as their error type.
//
// # Variants
//
//	Sync      value always known; owner sets it, writers go through a setter
//	Lazy      value produced on first access
//	Delayed   value arrives asynchronously; early reads and writes are held
//	Derived   combination of N input states, recomputed in batches
//	Proxy     transformed view of another state, optionally writable
//	Resource  value fetched from or streamed by an external source
//	Array     list that notifies with patches (added, removed, changed)
//
// # Subscriptions
//
// Subscribers are *Callback values compared by pointer. Delivery follows
// subscription order. A panicking subscriber is logged and skipped; the
// remaining subscribers still receive the value.
//
// # Scheduling
//
// All states bound to a scheduler must be touched only from that
// scheduler's thread (see package loop). Derived recomputation and resource
// timers run through the scheduler: several input changes within one task
// produce one recomputation in the following deferred step. Off-loop code
// reads with Await and writes with AwaitWrite; connectors doing I/O post
// results back with Scheduler.Post.
//
// # Write pipeline
//
// A write runs, in order: the writability check (CodeNotWritable), the
// limit, the validity check (CodeInvalid), then the setter. A rejected write
// never changes the value.
package state
