// Package store provides SQLite-backed persistence for resource cells.
//
// A cell is a keyed ir.Value. The store keeps:
//   - cells: the latest value per key
//   - cell_writes: an append-only log of every accepted write
//   - graphs: compiled graph specs, addressed by ir.GraphHash
//
// # Ordering
//
// Every write takes the next value of a store-wide logical clock (seq).
// Queries order by seq ASC, id ASC COLLATE BINARY so results are identical
// across runs. Wall-clock time is never stored.
//
// # Values
//
// Values are stored as RFC 8785 canonical JSON, so equal values have equal
// bytes and a write of the current value is detected without decoding.
// Such writes are dropped and leave no log entry.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and throughput
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
