package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
)

func TestSaveLoadGraph(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	g := &ir.GraphSpec{Name: "mixer", States: []ir.StateSpec{
		{Name: "a", Kind: ir.StateSync, Initial: ir.Int(1), Writable: true},
		{Name: "total", Kind: ir.StateDerived, Inputs: []string{"a"}, Combine: "sum", Initial: ir.Null{}},
	}}

	hash, err := s.SaveGraph(ctx, g)
	require.NoError(t, err)
	again, err := s.SaveGraph(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	loaded, err := s.LoadGraph(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, g, loaded)
}

func TestLoadGraph_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LoadGraph(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrGraphNotFound)
}
