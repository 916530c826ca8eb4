// Package services defines the business logic for menu analysis, dish
// enrichment, preferences, and recommendations. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import (
	"errors"

	"github.com/tbourn/menuscan-backend/internal/providers"
)

var (
	// ErrInvalidDevice is returned when a request carries no usable device
	// identifier.
	ErrInvalidDevice = errors.New("device id is required")

	// ErrInvalidPreferences is returned when a preference payload fails
	// validation (too many tags, oversized values).
	ErrInvalidPreferences = errors.New("invalid preference payload")

	// ErrNoPreferences indicates that the device has not saved a preference
	// profile yet. Callers should prompt the user to set preferences first.
	ErrNoPreferences = errors.New("no preferences saved for this device")

	// ErrNoDishes is returned when a recommendation is requested without any
	// candidate dishes.
	ErrNoDishes = errors.New("no dishes supplied")

	// ErrRateLimited is returned when the quota limiter denies the external
	// call backing a recommendation. Maps to HTTP 429.
	ErrRateLimited = errors.New("rate limited, try again shortly")

	// ErrRecommenderUnavailable is returned when no text-generation
	// collaborator is configured. Recommendations have no safe fallback, so
	// this surfaces instead of degrading.
	ErrRecommenderUnavailable = errors.New("recommendation provider not configured")

	// ErrUnsupportedImage aliases the provider sentinel so handlers depend on
	// the service layer only.
	ErrUnsupportedImage = providers.ErrUnsupportedImage
)
