package state

import (
	"bytes"
	"log/slog"
	"testing"
)

func okInt(v int) Result[int, ReadError] {
	return Ok[int, ReadError](v)
}

// recorder collects every result delivered to its callback.
type recorder[T, E any] struct {
	cb  *Callback[T, E]
	got []Result[T, E]
}

func record[T, E any](s Readable[T, E], deliverCurrent bool) *recorder[T, E] {
	r := &recorder[T, E]{}
	r.cb = NewCallback(func(v Result[T, E]) { r.got = append(r.got, v) })
	s.Subscribe(r.cb, deliverCurrent)
	return r
}

func (r *recorder[T, E]) values() []T {
	out := make([]T, 0, len(r.got))
	for _, v := range r.got {
		out = append(out, v.Value())
	}
	return out
}

func (r *recorder[T, E]) last() Result[T, E] {
	return r.got[len(r.got)-1]
}

// readNow returns the value Then delivers synchronously, failing the test if
// none is delivered.
func readNow[T, E any](t *testing.T, s Readable[T, E]) Result[T, E] {
	t.Helper()
	var got Result[T, E]
	delivered := false
	s.Then(func(r Result[T, E]) {
		got = r
		delivered = true
	})
	if !delivered {
		t.Fatalf("Then on %s did not deliver synchronously", s.Name())
	}
	return got
}

// captureLogs returns a logger writing text records into the returned buffer.
func captureLogs() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
