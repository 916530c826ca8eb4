package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGetPreferences_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.PreferenceProfile{})
	if _, err := GetPreferences(context.Background(), db, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertPreferences_InsertThenUpdate(t *testing.T) {
	db := newTestDB(t, &domain.PreferenceProfile{})
	ctx := context.Background()

	first, err := UpsertPreferences(ctx, db, "dev-1", &domain.PreferenceProfile{
		Dietary: domain.StringList{"vegetarian"},
		Allergy: domain.StringList{"shellfish"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID == "" || first.DeviceID != "dev-1" {
		t.Fatalf("unexpected row: %+v", first)
	}

	second, err := UpsertPreferences(ctx, db, "dev-1", &domain.PreferenceProfile{
		Dietary: domain.StringList{"vegan"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("update must reuse row, got new id %s", second.ID)
	}
	if len(second.Dietary) != 1 || second.Dietary[0] != "vegan" {
		t.Fatalf("dietary = %v", second.Dietary)
	}
	if len(second.Allergy) != 0 {
		t.Fatalf("allergy should be replaced, got %v", second.Allergy)
	}

	// One row per device id.
	var count int64
	db.Model(&domain.PreferenceProfile{}).Where("device_id = ?", "dev-1").Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}

func TestUpsertPreferences_IsolatedPerDevice(t *testing.T) {
	db := newTestDB(t, &domain.PreferenceProfile{})
	ctx := context.Background()

	if _, err := UpsertPreferences(ctx, db, "dev-a", &domain.PreferenceProfile{Cuisine: domain.StringList{"thai"}}); err != nil {
		t.Fatalf("dev-a: %v", err)
	}
	if _, err := UpsertPreferences(ctx, db, "dev-b", &domain.PreferenceProfile{Cuisine: domain.StringList{"italian"}}); err != nil {
		t.Fatalf("dev-b: %v", err)
	}

	a, err := GetPreferences(ctx, db, "dev-a")
	if err != nil {
		t.Fatalf("get dev-a: %v", err)
	}
	if len(a.Cuisine) != 1 || a.Cuisine[0] != "thai" {
		t.Fatalf("dev-a cuisine = %v", a.Cuisine)
	}
}
