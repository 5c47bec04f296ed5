// Package resource provides state.Connector implementations that back
// resource states with external sources.
//
// Backends:
//
//	memory     in-process value; the scenario harness pushes into it
//	sqlite     a cell in the statewire SQLite store, polled while connected
//	bolt       a key in a bbolt bucket, polled while connected
//	file       a JSON file, watched with fsnotify while connected
//	http       a JSON endpoint: GET to read, PUT to write, polled while connected
//	websocket  a JSON message stream; every message is a new value
//
// Connector methods run on the scheduler thread. Blocking I/O runs on its
// own goroutine and hands results back with Scheduler.Post, so resource
// state is only ever touched on the scheduler thread.
//
// Failures surface as Err(ReadError) values with CodeUnavailable, or
// CodeTimeout when a deadline expired.
package resource
