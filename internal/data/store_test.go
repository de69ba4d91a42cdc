package data

import (
	"path/filepath"
	"testing"

	"github.com/glimmerhq/glimpse/internal/localstore"
)

// newTestStore opens a throwaway guest store.
func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "guest.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}
