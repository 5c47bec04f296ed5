package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
	"github.com/roach88/statewire/internal/testutil"
)

func newCell(sched *testutil.ManualScheduler, conn Connector) *Cell {
	return state.NewResource(sched, conn, state.Timing{Timeout: time.Minute},
		state.WithEqual(ir.Equal))
}

// eventually flushes sched until cond holds. Connectors deliver from their
// own goroutines through Post, so the test drives the scheduler by hand.
func eventually(t *testing.T, sched *testutil.ManualScheduler, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		sched.Flush()
		return cond()
	}, 5*time.Second, 10*time.Millisecond)
}

// collector subscribes to a cell and keeps every delivered result.
type collector struct {
	cb  *state.Callback[ir.Value, state.ReadError]
	got []Result
}

func collect(t *testing.T, r *Cell) *collector {
	c := &collector{}
	c.cb = r.Subscribe(state.NewCallback(func(v Result) { c.got = append(c.got, v) }), false)
	t.Cleanup(func() {
		if r.InUse() {
			r.Unsubscribe(c.cb)
		}
	})
	return c
}

func (c *collector) has(v ir.Value) bool {
	for _, r := range c.got {
		if r.IsOk() && ir.Equal(r.Value(), v) {
			return true
		}
	}
	return false
}

func (c *collector) hasErr() bool {
	for _, r := range c.got {
		if r.IsErr() {
			return true
		}
	}
	return false
}

// fetchOnce issues an unsubscribed read and waits for its result.
func fetchOnce(t *testing.T, sched *testutil.ManualScheduler, r *Cell) Result {
	t.Helper()
	var got *Result
	r.Then(func(v Result) { got = &v })
	eventually(t, sched, func() bool { return got != nil })
	return *got
}

// awaitWrite waits for a write future to settle.
func awaitWrite(t *testing.T, sched *testutil.ManualScheduler, f *state.Future[error]) error {
	t.Helper()
	eventually(t, sched, f.Settled)
	err, _ := f.Value()
	return err
}
