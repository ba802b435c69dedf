// Package testutil provides shared test helpers for databases and blob roots.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/staykeep/internal/blob"
	"github.com/starford/staykeep/internal/store"
)

// TestDB creates a migrated temporary SQLite database that is automatically
// cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "staykeep-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := store.Open(store.DriverSQLite, dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestBlobs creates a temporary filesystem blob store served under baseURL.
func TestBlobs(t *testing.T, baseURL string) (string, *blob.FS) {
	t.Helper()
	root := t.TempDir()
	fs, err := blob.NewFS(root, baseURL)
	if err != nil {
		t.Fatal(err)
	}
	return root, fs
}
