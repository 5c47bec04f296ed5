package resource

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
	"github.com/roach88/statewire/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cells.db"),
		store.WithIDGenerator(testutil.NewSequentialIDGenerator("w")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteCell_FallbackAndWrite(t *testing.T) {
	sched := testutil.NewManualScheduler()
	st := openStore(t)
	r := newCell(sched, NewSQLiteCell(st, "greeting", WithFallback(ir.String("none"))))

	got := fetchOnce(t, sched, r)
	assert.Equal(t, ir.String("none"), got.Value())

	require.NoError(t, awaitWrite(t, sched, r.Write(ir.String("hi"))))
	cell, found, err := st.Get(context.Background(), "greeting")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.String("hi"), cell.Value)
}

func TestSQLiteCell_PollsForChanges(t *testing.T) {
	sched := testutil.NewManualScheduler()
	st := openStore(t)
	_, _, err := st.Put(context.Background(), "n", ir.Int(1))
	require.NoError(t, err)

	r := newCell(sched, NewSQLiteCell(st, "n", WithPollInterval(10*time.Millisecond)))
	c := collect(t, r)
	eventually(t, sched, func() bool { return c.has(ir.Int(1)) })

	_, _, err = st.Put(context.Background(), "n", ir.Int(2))
	require.NoError(t, err)
	eventually(t, sched, func() bool { return c.has(ir.Int(2)) })

	r.Unsubscribe(c.cb)
	assert.False(t, r.Connected())
}
