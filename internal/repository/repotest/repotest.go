// Package repotest opens isolated in-memory databases for tests.
package repotest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/repository"
)

// NewDB returns a migrated, seeded sqlite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := repository.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}
	if err := repository.SeedStrategies(context.Background(), db); err != nil {
		t.Fatalf("failed to seed strategies: %v", err)
	}
	return db
}
