package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// ErrGraphNotFound is returned by LoadGraph for unknown hashes.
var ErrGraphNotFound = errors.New("graph not found")

// SaveGraph stores a compiled graph under its content hash and returns the
// hash. Saving the same graph twice is a no-op.
func (s *Store) SaveGraph(ctx context.Context, g *ir.GraphSpec) (string, error) {
	hash, err := ir.GraphHash(g)
	if err != nil {
		return "", fmt.Errorf("save graph: %w", err)
	}
	spec, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("save graph: marshal: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO graphs (hash, name, spec) VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, g.Name, string(spec)); err != nil {
		return "", fmt.Errorf("save graph: %w", err)
	}
	return hash, nil
}

// LoadGraph returns the graph stored under hash.
func (s *Store) LoadGraph(ctx context.Context, hash string) (*ir.GraphSpec, error) {
	var spec string
	err := s.db.QueryRowContext(ctx, `SELECT spec FROM graphs WHERE hash = ?`, hash).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load graph %s: %w", hash, ErrGraphNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", hash, err)
	}

	var g ir.GraphSpec
	if err := json.Unmarshal([]byte(spec), &g); err != nil {
		return nil, fmt.Errorf("load graph %s: %w", hash, err)
	}
	return &g, nil
}
