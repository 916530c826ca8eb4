// Package services – PreferenceService
//
// This file implements the PreferenceService, which manages per-device taste
// profiles. It sanitizes incoming tag sets (trimming, de-duplication, size
// caps) and enforces the one-profile-per-device invariant through the
// repository upsert.
//
// Service-level errors (ErrInvalidDevice, ErrInvalidPreferences,
// ErrNoPreferences) are returned for predictable cases so handlers can map
// them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/menuscan-backend/internal/domain"
	"github.com/tbourn/menuscan-backend/internal/repo"
)

// PreferenceInput carries the raw, client-supplied tag sets before
// sanitization.
type PreferenceInput struct {
	Dietary  []string `json:"dietary"`
	Cuisine  []string `json:"cuisine"`
	Allergy  []string `json:"allergy"`
	Flavor   []string `json:"flavor"`
	Dislikes []string `json:"dislikes"`
}

// PreferenceService persists and retrieves per-device preference profiles.
type PreferenceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// MaxTags caps the number of entries per tag set.
	MaxTags int
	// MaxTagLen caps each entry by rune length.
	MaxTagLen int
}

// NewPreferenceService constructs a PreferenceService with sane limits.
func NewPreferenceService(db *gorm.DB) *PreferenceService {
	return &PreferenceService{DB: db, MaxTags: 20, MaxTagLen: 64}
}

// Upsert validates and stores the profile for deviceID, replacing any
// previous tag sets wholesale.
func (s *PreferenceService) Upsert(ctx context.Context, deviceID string, in PreferenceInput) (*domain.PreferenceProfile, error) {
	ctx, span := otel.Tracer("services/preference").Start(ctx, "PreferenceService.Upsert")
	defer span.End()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}

	p := &domain.PreferenceProfile{}
	var err error
	if p.Dietary, err = s.sanitize(in.Dietary); err != nil {
		return nil, err
	}
	if p.Cuisine, err = s.sanitize(in.Cuisine); err != nil {
		return nil, err
	}
	if p.Allergy, err = s.sanitize(in.Allergy); err != nil {
		return nil, err
	}
	if p.Flavor, err = s.sanitize(in.Flavor); err != nil {
		return nil, err
	}
	if p.Dislikes, err = s.sanitize(in.Dislikes); err != nil {
		return nil, err
	}

	return repo.UpsertPreferences(ctx, s.DB, deviceID, p)
}

// Get fetches the profile for deviceID, or ErrNoPreferences when the device
// has not saved one yet.
func (s *PreferenceService) Get(ctx context.Context, deviceID string) (*domain.PreferenceProfile, error) {
	ctx, span := otel.Tracer("services/preference").Start(ctx, "PreferenceService.Get")
	defer span.End()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}
	p, err := repo.GetPreferences(ctx, s.DB, deviceID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoPreferences
	}
	return p, err
}

// sanitize trims, drops empties, de-duplicates case-insensitively, and
// enforces the size caps. Order of first appearance is preserved.
func (s *PreferenceService) sanitize(tags []string) (domain.StringList, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make(domain.StringList, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > s.MaxTagLen {
			return nil, ErrInvalidPreferences
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	if len(out) > s.MaxTags {
		return nil, ErrInvalidPreferences
	}
	return out, nil
}
