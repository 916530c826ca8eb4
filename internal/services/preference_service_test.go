package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

func newSvcDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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

func TestPreferenceService_UpsertThenGet(t *testing.T) {
	db := newSvcDB(t, &domain.PreferenceProfile{})
	svc := NewPreferenceService(db)
	ctx := context.Background()

	saved, err := svc.Upsert(ctx, "dev-1", PreferenceInput{
		Dietary: []string{" vegetarian ", "vegetarian", "Vegetarian", ""},
		Allergy: []string{"peanuts"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(saved.Dietary) != 1 || saved.Dietary[0] != "vegetarian" {
		t.Fatalf("dietary should be trimmed and de-duplicated, got %v", saved.Dietary)
	}

	got, err := svc.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != saved.ID {
		t.Fatalf("get returned different row: %s vs %s", got.ID, saved.ID)
	}
	if len(got.Allergy) != 1 || got.Allergy[0] != "peanuts" {
		t.Fatalf("allergy = %v", got.Allergy)
	}
}

func TestPreferenceService_MissingProfile(t *testing.T) {
	db := newSvcDB(t, &domain.PreferenceProfile{})
	svc := NewPreferenceService(db)

	if _, err := svc.Get(context.Background(), "nobody"); !errors.Is(err, ErrNoPreferences) {
		t.Fatalf("err = %v, want ErrNoPreferences", err)
	}
}

func TestPreferenceService_InvalidInput(t *testing.T) {
	db := newSvcDB(t, &domain.PreferenceProfile{})
	svc := NewPreferenceService(db)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "   ", PreferenceInput{}); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("blank device err = %v, want ErrInvalidDevice", err)
	}

	tooMany := make([]string, svc.MaxTags+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("tag-%d", i)
	}
	if _, err := svc.Upsert(ctx, "dev-1", PreferenceInput{Cuisine: tooMany}); !errors.Is(err, ErrInvalidPreferences) {
		t.Fatalf("too many tags err = %v, want ErrInvalidPreferences", err)
	}

	long := strings.Repeat("x", svc.MaxTagLen+1)
	if _, err := svc.Upsert(ctx, "dev-1", PreferenceInput{Flavor: []string{long}}); !errors.Is(err, ErrInvalidPreferences) {
		t.Fatalf("oversized tag err = %v, want ErrInvalidPreferences", err)
	}
}

func TestPreferenceService_UpsertReplacesTagSets(t *testing.T) {
	db := newSvcDB(t, &domain.PreferenceProfile{})
	svc := NewPreferenceService(db)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "dev-1", PreferenceInput{Dislikes: []string{"cilantro"}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := svc.Upsert(ctx, "dev-1", PreferenceInput{Cuisine: []string{"japanese"}})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if len(second.Dislikes) != 0 {
		t.Fatalf("dislikes should be replaced wholesale, got %v", second.Dislikes)
	}

	var count int64
	db.Model(&domain.PreferenceProfile{}).Where("device_id = ?", "dev-1").Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}
