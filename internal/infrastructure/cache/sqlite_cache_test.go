package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"blustick/internal/infrastructure/persistence/sqlite/model"
)

func setupCache(t *testing.T) *SQLiteCache {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "cache.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.CacheEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewSQLiteCache(db)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "summary:all-devices", `[{"mac_address":"AA:AA"}]`, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := c.Get(ctx, "summary:all-devices")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if value != `[{"mac_address":"AA:AA"}]` {
		t.Fatalf("value = %q", value)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := setupCache(t)

	_, found, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("found = true, want false")
	}
}

func TestExpiredEntryBehavesAsAbsent(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if err := c.Set(ctx, "k", "v", 30*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	c.now = func() time.Time { return base.Add(29 * time.Second) }
	if _, found, _ := c.Get(ctx, "k"); !found {
		t.Fatal("entry expired early")
	}

	c.now = func() time.Time { return base.Add(31 * time.Second) }
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("entry served past its ttl")
	}
}

func TestSetOverwritesExisting(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "k", "v2", time.Minute); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	value, found, err := c.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get() = %v, found=%v", err, found)
	}
	if value != "v2" {
		t.Fatalf("value = %q, want v2", value)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("entry survived delete")
	}

	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() absent key error = %v", err)
	}
}

func TestZeroTTLSetIsNoop(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("zero ttl must not store")
	}
}
