package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// Cell is the latest value stored under a key.
type Cell struct {
	Key   string
	Value ir.Value
	Seq   int64
}

// Get returns the cell stored under key. found is false when the key has
// never been written or was deleted.
func (s *Store) Get(ctx context.Context, key string) (cell Cell, found bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value, seq FROM cells WHERE key = ?`, key).Scan(&raw, &cell.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Cell{}, false, nil
	}
	if err != nil {
		return Cell{}, false, fmt.Errorf("get %q: %w", key, err)
	}

	cell.Key = key
	cell.Value, err = unmarshalValue(raw)
	if err != nil {
		return Cell{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	return cell, true, nil
}

// Put stores v under key. Writing the value already stored is a no-op: the
// existing cell is returned and changed is false.
func (s *Store) Put(ctx context.Context, key string, v ir.Value) (cell Cell, changed bool, err error) {
	raw, err := marshalValue(v)
	if err != nil {
		return Cell{}, false, fmt.Errorf("put %q: %w", key, err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		var currentSeq int64
		err := tx.QueryRowContext(ctx, `SELECT value, seq FROM cells WHERE key = ?`, key).Scan(&current, &currentSeq)
		switch {
		case err == nil && current == raw:
			cell = Cell{Key: key, Value: v, Seq: currentSeq}
			return nil
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return err
		}

		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM cell_writes`).Scan(&seq); err != nil {
			return fmt.Errorf("next seq: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cell_writes (id, key, value, seq)
			VALUES (?, ?, ?, ?)
		`, s.ids.Generate(), key, raw, seq); err != nil {
			return fmt.Errorf("log write: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cells (key, value, seq)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, seq = excluded.seq
		`, key, raw, seq); err != nil {
			return fmt.Errorf("upsert cell: %w", err)
		}

		cell = Cell{Key: key, Value: v, Seq: seq}
		changed = true
		return nil
	})
	if err != nil {
		return Cell{}, false, fmt.Errorf("put %q: %w", key, err)
	}
	return cell, changed, nil
}

// Delete removes key's cell. Its write history is kept.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cells WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys returns every stored key in byte order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cells ORDER BY key ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keys: scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return keys, nil
}
