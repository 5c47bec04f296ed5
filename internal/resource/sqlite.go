package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
	"github.com/roach88/statewire/internal/store"
)

// storeReads collapses concurrent reads of one cell.
var storeReads singleflight.Group

// SQLiteCell backs a Cell with one key of the statewire store.
type SQLiteCell struct {
	store    *store.Store
	key      string
	fallback ir.Value
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	live *session
}

// SQLiteOption configures a SQLiteCell.
type SQLiteOption func(*SQLiteCell)

// WithPollInterval sets how often a connected cell polls the store.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(c *SQLiteCell) {
		c.interval = d
	}
}

// WithFallback sets the value reported for a key that was never written.
func WithFallback(v ir.Value) SQLiteOption {
	return func(c *SQLiteCell) {
		c.fallback = v
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) SQLiteOption {
	return func(c *SQLiteCell) {
		c.logger = l
	}
}

// NewSQLiteCell creates a connector for key.
func NewSQLiteCell(st *store.Store, key string, opts ...SQLiteOption) *SQLiteCell {
	c := &SQLiteCell{
		store:    st,
		key:      key,
		fallback: ir.Null{},
		interval: DefaultPollInterval,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = loggerOr(c.logger).With("backend", ir.BackendSQLite, "key", key)
	return c
}

type storeRead struct {
	cell  store.Cell
	found bool
}

func (c *SQLiteCell) read(ctx context.Context) (store.Cell, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err, _ := storeReads.Do(fmt.Sprintf("%p/%s", c.store, c.key), func() (any, error) {
		cell, found, err := c.store.Get(ctx, c.key)
		return storeRead{cell: cell, found: found}, err
	})
	if err != nil {
		return store.Cell{}, false, err
	}
	r := v.(storeRead)
	return r.cell, r.found, nil
}

func (c *SQLiteCell) result(cell store.Cell, found bool) Result {
	if !found {
		return ok(c.fallback)
	}
	return ok(cell.Value)
}

func (c *SQLiteCell) SingleGet(r *Cell) {
	go func() {
		cell, found, err := c.read(context.Background())
		if err != nil {
			c.logger.Warn("read failed", "error", err)
			deliver(r, failure("read "+c.key, err))
			return
		}
		deliver(r, c.result(cell, found))
	}()
}

func (c *SQLiteCell) SetupConnection(r *Cell) {
	c.live = startSession(func(ctx context.Context) {
		var lastSeq int64 = -1
		check := func(ctx context.Context) {
			cell, found, err := c.read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("poll failed", "error", err)
					deliver(r, failure("poll "+c.key, err))
				}
				return
			}
			if cell.Seq == lastSeq {
				return
			}
			lastSeq = cell.Seq
			deliver(r, c.result(cell, found))
		}
		check(ctx)
		poll(ctx, c.interval, check)
	})
}

func (c *SQLiteCell) TeardownConnection(*Cell) {
	c.live.stop()
	c.live = nil
}

func (c *SQLiteCell) WriteAction(r *Cell, v ir.Value) *state.Future[error] {
	done := state.NewFuture[error]()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		_, changed, err := c.store.Put(ctx, c.key, v)
		if err != nil {
			c.logger.Warn("write failed", "error", err)
			settle(r, done, fmt.Errorf("write %s: %w", c.key, err))
			return
		}
		if changed {
			deliver(r, ok(v))
		}
		settle(r, done, nil)
	}()
	return done
}

var _ Connector = (*SQLiteCell)(nil)
