// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the dish cache.
//
// The cache is keyed by the normalized dish name; callers must normalize
// through menu.Normalize before reading or writing. Expiry is a read-time
// filter: expired rows stay in the table and are refreshed by the next write
// (last writer wins), there is no cleanup job.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

// GetDishCache fetches the cache entry for the normalized key, treating
// missing and expired rows alike as ErrNotFound.
func GetDishCache(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.DishCacheEntry, error) {
	var e domain.DishCacheEntry
	err := db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", key, now).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertDishCache inserts or refreshes the entry under its normalized key.
// Conflicting concurrent writes resolve last-writer-wins, which is acceptable
// because entries are derived data, re-creatable from the providers.
func UpsertDishCache(ctx context.Context, db *gorm.DB, e *domain.DishCacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "image_urls", "short_description", "metadata", "expires_at",
			}),
		}).
		Create(e).Error
}

// UpsertDishImages refreshes only the image fields of the entry, leaving any
// cached description intact. The image resolver and the description generator
// write concurrently for the same dish; partial upserts keep them from
// clobbering each other's columns.
func UpsertDishImages(ctx context.Context, db *gorm.DB, key, displayName string, urls []string, metadata string, expiresAt time.Time) error {
	e := &domain.DishCacheEntry{
		ID:          key,
		DisplayName: displayName,
		ImageURLs:   domain.StringList(urls),
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "image_urls", "metadata", "expires_at",
			}),
		}).
		Create(e).Error
}

// UpsertDishDescription refreshes only the short description, leaving any
// cached image URLs intact.
func UpsertDishDescription(ctx context.Context, db *gorm.DB, key, displayName, description string, expiresAt time.Time) error {
	e := &domain.DishCacheEntry{
		ID:               key,
		DisplayName:      displayName,
		ShortDescription: description,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        expiresAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "short_description", "expires_at",
			}),
		}).
		Create(e).Error
}
