// Package loop provides the single-threaded scheduler the state engine runs on.
//
// # Execution Model
//
// All state operations happen on one logical thread. Concurrency is the
// interleaving of deferred continuations, never parallel execution:
//
//   - Tasks: posted with Post from any goroutine, executed in FIFO order.
//   - Deferred steps: queued with Defer from inside a task, executed after the
//     current task returns and before the next task starts. Derived states use
//     this to coalesce several input changes into one recompute.
//   - Timers: AfterFunc callbacks are posted back onto the loop when they fire,
//     so they run to completion like any other task. A stopped timer never runs.
//
// # Ownership
//
// Loop records the goroutine that called Run. Scheduling deferred steps or
// timers from any other goroutine is a programming error; it is logged and the
// work is re-posted as a regular task instead of corrupting the deferred queue.
//
// Tests and the scenario harness use testutil.ManualScheduler, which implements
// Scheduler over virtual time.
package loop
