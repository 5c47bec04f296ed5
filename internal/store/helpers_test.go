package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/statewire/internal/testutil"
)

// createTestStore opens a store in a temp dir with sequential write IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDGenerator("w")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
