// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PreferenceProfile model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetPreferences fetches the profile for deviceID, or ErrNotFound.
func GetPreferences(ctx context.Context, db *gorm.DB, deviceID string) (*domain.PreferenceProfile, error) {
	var p domain.PreferenceProfile
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPreferences stores the profile for deviceID, enforcing the
// one-profile-per-device invariant: an existing row is updated in place,
// otherwise a new row is inserted with a fresh UUID.
func UpsertPreferences(ctx context.Context, db *gorm.DB, deviceID string, p *domain.PreferenceProfile) (*domain.PreferenceProfile, error) {
	var out *domain.PreferenceProfile
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.PreferenceProfile
		err := tx.Where("device_id = ?", deviceID).First(&existing).Error
		switch {
		case err == nil:
			existing.Dietary = p.Dietary
			existing.Cuisine = p.Cuisine
			existing.Allergy = p.Allergy
			existing.Flavor = p.Flavor
			existing.Dislikes = p.Dislikes
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			out = &existing
			return nil
		case err == gorm.ErrRecordNotFound:
			fresh := &domain.PreferenceProfile{
				ID:        uuid.NewString(),
				DeviceID:  deviceID,
				Dietary:   p.Dietary,
				Cuisine:   p.Cuisine,
				Allergy:   p.Allergy,
				Flavor:    p.Flavor,
				Dislikes:  p.Dislikes,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(fresh).Error; err != nil {
				return err
			}
			out = fresh
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
