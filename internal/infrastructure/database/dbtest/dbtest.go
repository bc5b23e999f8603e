// Package dbtest opens throwaway fleet databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/lampfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/database"
	_ "github.com/nerrad567/lampfleet-core/migrations" // registers the schema
)

// Open creates a migrated SQLite database in a temp dir. It is closed when
// the test ends.
func Open(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "fleet.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}
