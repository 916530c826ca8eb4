// Package domain defines the persistence models for preference profiles,
// cached dish enrichment data, and shared quota counters. These types are
// mapped with GORM and form the core data layer of the menu-scanning backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringList is a []string stored as a JSON array in a single text column.
// SQLite (and MySQL/Postgres) all accept the encoded form, which keeps the
// schema portable without a join table for simple tag sets.
type StringList []string

// Value implements driver.Valuer, encoding the list as JSON text.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, decoding JSON text (or bytes) into the list.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return errors.New("StringList: unsupported source type")
	}
}

// PreferenceProfile holds a device's dietary preferences. There is at most one
// profile per device id (upsert semantics); the device id is an opaque,
// unauthenticated identifier minted client-side and trusted as-is.
//
// Fields:
//   - DeviceID: unique opaque identifier for a browser/user.
//   - Dietary/Cuisine/Allergy/Flavor: tag sets. Allergies are hard exclusions
//     during recommendation; the rest steer ranking.
//   - Dislikes: freeform disliked-ingredient strings (soft-avoid).
type PreferenceProfile struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	DeviceID  string     `json:"device_id"  gorm:"type:varchar(128);not null;uniqueIndex:ux_pref_device"`
	Dietary   StringList `json:"dietary"    gorm:"type:text"`
	Cuisine   StringList `json:"cuisine"    gorm:"type:text"`
	Allergy   StringList `json:"allergy"    gorm:"type:text"`
	Flavor    StringList `json:"flavor"     gorm:"type:text"`
	Dislikes  StringList `json:"dislikes"   gorm:"type:text"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for PreferenceProfile.
func (PreferenceProfile) TableName() string { return "preference_profiles" }

// DishCacheEntry caches enrichment results (image URLs, short description)
// for a dish, keyed by its normalized name. Expired rows are treated as cache
// misses at read time but are not proactively deleted; a later write simply
// refreshes the row (last writer wins).
//
// Fields:
//   - ID: normalized dish key (lowercased, price/annotation-stripped).
//   - DisplayName: presentable dish name for clients.
//   - ImageURLs: ordered candidates; first is primary, second the thumbnail.
//   - Metadata: arbitrary JSON payload (provider attribution, search query…).
//   - ExpiresAt: read-time expiry filter, default +90 days from write.
type DishCacheEntry struct {
	ID               string     `json:"id"                gorm:"type:varchar(255);primaryKey"`
	DisplayName      string     `json:"display_name"      gorm:"type:varchar(255);not null"`
	ImageURLs        StringList `json:"image_urls"        gorm:"type:text"`
	ShortDescription string     `json:"short_description" gorm:"type:text"`
	Metadata         string     `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"        gorm:"index"`
}

// TableName returns the database table name for DishCacheEntry.
func (DishCacheEntry) TableName() string { return "dish_cache" }

// HasImage reports whether the entry carries at least one usable image URL.
func (e *DishCacheEntry) HasImage() bool {
	return len(e.ImageURLs) > 0 && e.ImageURLs[0] != ""
}

// Expired reports whether the entry must be treated as a miss at the given time.
func (e *DishCacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// RateCounter backs the shared quota counter store. One row per bucket key
// (per API, per minute-window or per UTC day). Expired rows are logically
// reset by the next increment instead of being garbage-collected.
type RateCounter struct {
	Key       string    `json:"key"        gorm:"type:varchar(128);primaryKey"`
	Count     int64     `json:"count"      gorm:"not null;default:0"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// TableName returns the database table name for RateCounter.
func (RateCounter) TableName() string { return "rate_counters" }

//
// Transient types (never persisted, request-scoped only)
//

// ExtractedDish is a dish candidate pulled from a photographed menu by the
// vision extractor, prior to enrichment.
type ExtractedDish struct {
	Name string `json:"name"`
	// Description is the menu's own printed description when visible; empty
	// for the OCR fallback path.
	Description string `json:"description,omitempty"`
}

// Dish is a fully enriched dish as returned by /analyze.
type Dish struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	DetailedDescription string   `json:"detailed_description,omitempty"`
	ImageURL            string   `json:"image_url,omitempty"`
	ThumbnailURL        string   `json:"thumbnail_url,omitempty"`
	AllImageURLs        []string `json:"all_image_urls,omitempty"`
}

// Recommendation is one ranked, validated suggestion. Derived per request,
// never persisted.
type Recommendation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
	// Score is the match quality in [0,100].
	Score int `json:"score"`
	// Reason is the collaborator's preference-grounded justification.
	Reason string `json:"reason"`
}
