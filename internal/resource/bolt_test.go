package resource

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/testutil"
)

func openBolt(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "vars.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltVar_MissingKeyReadsNull(t *testing.T) {
	sched := testutil.NewManualScheduler()
	r := newCell(sched, NewBoltVar(openBolt(t), "absent", 0, nil))

	got := fetchOnce(t, sched, r)
	require.True(t, got.IsOk())
	assert.Equal(t, ir.Null{}, got.Value())
}

func TestBoltVar_WriteIsSeenByPollingCell(t *testing.T) {
	sched := testutil.NewManualScheduler()
	db := openBolt(t)
	writer := newCell(sched, NewBoltVar(db, "list", 0, nil))
	reader := newCell(sched, NewBoltVar(db, "list", 10*time.Millisecond, nil))
	c := collect(t, reader)
	eventually(t, sched, func() bool { return c.has(ir.Null{}) })

	want := ir.List{ir.Int(1), ir.String("two")}
	require.NoError(t, awaitWrite(t, sched, writer.Write(want)))
	eventually(t, sched, func() bool { return c.has(want) })
}

func TestBoltVar_CorruptValueIsAnError(t *testing.T) {
	sched := testutil.NewManualScheduler()
	db := openBolt(t)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(DefaultBucket)).Put([]byte("bad"), []byte("{not json"))
	}))

	got := fetchOnce(t, sched, newCell(sched, NewBoltVar(db, "bad", 0, nil)))
	require.True(t, got.IsErr())
	assert.Contains(t, got.Error().Reason, "decode bad")
}
