package resource

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// DefaultBucket is the bucket BoltVar keys live in.
const DefaultBucket = "statewire"

// BoltVar backs a Cell with one key of a bbolt bucket. bbolt has no change
// notifications, so a connected var polls and compares bytes.
type BoltVar struct {
	db       *bolt.DB
	bucket   []byte
	key      []byte
	fallback ir.Value
	interval time.Duration
	logger   *slog.Logger

	live *session
}

// NewBoltVar creates a connector for key in db's DefaultBucket.
func NewBoltVar(db *bolt.DB, key string, interval time.Duration, logger *slog.Logger) *BoltVar {
	return &BoltVar{
		db:       db,
		bucket:   []byte(DefaultBucket),
		key:      []byte(key),
		fallback: ir.Null{},
		interval: interval,
		logger:   loggerOr(logger).With("backend", ir.BackendBolt, "key", key),
	}
}

// OpenBolt opens or creates a bbolt database and its bucket.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(DefaultBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return db, nil
}

// load returns the raw stored bytes, or nil when the key is absent.
func (b *BoltVar) load() ([]byte, error) {
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(b.key); v != nil {
			raw = bytes.Clone(v)
		}
		return nil
	})
	return raw, err
}

func (b *BoltVar) decode(raw []byte) Result {
	if raw == nil {
		return ok(b.fallback)
	}
	v, err := ir.Unmarshal(raw)
	if err != nil {
		return failure("decode "+string(b.key), err)
	}
	return ok(v)
}

func (b *BoltVar) SingleGet(r *Cell) {
	go func() {
		raw, err := b.load()
		if err != nil {
			b.logger.Warn("read failed", "error", err)
			deliver(r, failure("read "+string(b.key), err))
			return
		}
		deliver(r, b.decode(raw))
	}()
}

func (b *BoltVar) SetupConnection(r *Cell) {
	b.live = startSession(func(ctx context.Context) {
		var last []byte
		first := true
		check := func(context.Context) {
			raw, err := b.load()
			if err != nil {
				b.logger.Warn("poll failed", "error", err)
				deliver(r, failure("poll "+string(b.key), err))
				return
			}
			if !first && bytes.Equal(raw, last) {
				return
			}
			first = false
			last = raw
			deliver(r, b.decode(raw))
		}
		check(ctx)
		poll(ctx, b.interval, check)
	})
}

func (b *BoltVar) TeardownConnection(*Cell) {
	b.live.stop()
	b.live = nil
}

func (b *BoltVar) WriteAction(r *Cell, v ir.Value) *state.Future[error] {
	done := state.NewFuture[error]()
	go func() {
		raw, err := ir.MarshalCanonical(v)
		if err == nil {
			err = b.db.Update(func(tx *bolt.Tx) error {
				bucket, err := tx.CreateBucketIfNotExists(b.bucket)
				if err != nil {
					return err
				}
				return bucket.Put(b.key, raw)
			})
		}
		if err != nil {
			b.logger.Warn("write failed", "error", err)
			settle(r, done, fmt.Errorf("write %s: %w", b.key, err))
			return
		}
		deliver(r, ok(v))
		settle(r, done, nil)
	}()
	return done
}

var _ Connector = (*BoltVar)(nil)
