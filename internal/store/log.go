package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// Write is one entry of the write log.
type Write struct {
	ID    string
	Key   string
	Value ir.Value
	Seq   int64
}

// History returns the writes to key in seq order.
func (s *Store) History(ctx context.Context, key string) ([]Write, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, value, seq FROM cell_writes
		WHERE key = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, key)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", key, err)
	}
	return scanWrites(rows)
}

// Changes returns every write with seq greater than since, in seq order.
func (s *Store) Changes(ctx context.Context, since int64) ([]Write, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, value, seq FROM cell_writes
		WHERE seq > ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, since)
	if err != nil {
		return nil, fmt.Errorf("changes since %d: %w", since, err)
	}
	return scanWrites(rows)
}

// LatestSeq returns the seq of the newest write, or 0 for an empty store.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM cell_writes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq, nil
}

func scanWrites(rows *sql.Rows) ([]Write, error) {
	defer rows.Close()

	var writes []Write
	for rows.Next() {
		var w Write
		var raw string
		if err := rows.Scan(&w.ID, &w.Key, &raw, &w.Seq); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		v, err := unmarshalValue(raw)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", w.ID, err)
		}
		w.Value = v
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate writes: %w", err)
	}
	return writes, nil
}
