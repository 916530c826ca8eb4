// Preference HTTP handlers.
//
// This file exposes REST endpoints for per-device taste profiles:
//   - POST /preferences   (save/replace)
//   - GET  /preferences   (fetch)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/menuscan-backend/internal/domain"
	"github.com/tbourn/menuscan-backend/internal/http/middleware"
	"github.com/tbourn/menuscan-backend/internal/quota"
	"github.com/tbourn/menuscan-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// PreferenceService defines profile operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PreferenceService interface {
	// Upsert validates and stores the tag sets for a device.
	Upsert(ctx context.Context, deviceID string, in services.PreferenceInput) (*domain.PreferenceProfile, error)
	// Get fetches the device's profile, or services.ErrNoPreferences.
	Get(ctx context.Context, deviceID string) (*domain.PreferenceProfile, error)
}

// MenuAnalyzer defines menu-photo analysis operations.
type MenuAnalyzer interface {
	// Analyze extracts and enriches the dishes on a menu photo.
	Analyze(ctx context.Context, image []byte) (*services.AnalyzeResult, error)
	// DishDetail generates an on-demand detailed dish description.
	DishDetail(ctx context.Context, dishName, menuDescription string) string
}

// Recommender defines preference-based dish ranking.
type Recommender interface {
	// Recommend ranks candidate dishes against a saved profile.
	Recommend(ctx context.Context, dishes []domain.Dish, prefs *domain.PreferenceProfile) ([]domain.Recommendation, error)
}

// UsageReporter exposes external API quota usage snapshots.
type UsageReporter interface {
	Usage(ctx context.Context) []quota.APIUsage
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for preferences, analysis, recommendations,
// and usage. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	prefSvc PreferenceService
	menuSvc MenuAnalyzer
	recSvc  Recommender
	usage   UsageReporter

	// MaxUploadBytes caps the accepted menu photo size.
	MaxUploadBytes int64
	// AnalyzeTimeout bounds one full analysis run.
	AnalyzeTimeout time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(prefSvc PreferenceService, menuSvc MenuAnalyzer, recSvc Recommender, usage UsageReporter) *Handlers {
	return &Handlers{prefSvc: prefSvc, menuSvc: menuSvc, recSvc: recSvc, usage: usage}
}

// deviceID extracts the opaque device identifier (query parameter, header,
// or cookie, in that order). The id is an unauthenticated client-minted value
// and is trusted as-is.
func deviceID(c *gin.Context) string {
	return middleware.DeviceID(c)
}

//
// DTOs
//

// SavePreferencesRequest is the JSON payload for saving a taste profile. All
// tag sets are replaced wholesale; omitted sets are cleared.
type SavePreferencesRequest struct {
	Dietary  []string `json:"dietary"  example:"vegetarian"`
	Cuisine  []string `json:"cuisine"  example:"thai"`
	Allergy  []string `json:"allergy"  example:"peanuts"`
	Flavor   []string `json:"flavor"   example:"spicy"`
	Dislikes []string `json:"dislikes" example:"cilantro"`
}

//
// Handlers
//

// SavePreferences godoc
// @ID          savePreferences
// @Summary     Save taste preferences
// @Description Stores (or replaces) the device's taste profile.
// @Tags        Preferences
// @Accept      json
// @Produce     json
//
// @Param       X-Device-ID  header  string  true  "Device ID"  example(dev-123)
// @Param       body         body    handlers.SavePreferencesRequest  true  "Preference payload"
//
// @Success     201  {object}  domain.PreferenceProfile
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /preferences [post]
func (h *Handlers) SavePreferences(c *gin.Context) {
	var req SavePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.prefSvc.Upsert(c.Request.Context(), deviceID(c), services.PreferenceInput{
		Dietary:  req.Dietary,
		Cuisine:  req.Cuisine,
		Allergy:  req.Allergy,
		Flavor:   req.Flavor,
		Dislikes: req.Dislikes,
	})
	switch {
	case err == nil:
		ok(c, http.StatusCreated, p)
	case errors.Is(err, services.ErrInvalidDevice):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "device id is required")
	case errors.Is(err, services.ErrInvalidPreferences):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid preference payload")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeSaveFailed, err.Error())
	}
}

// GetPreferences godoc
// @ID          getPreferences
// @Summary     Fetch taste preferences
// @Description Returns the device's saved taste profile.
// @Tags        Preferences
// @Produce     json
//
// @Param       X-Device-ID  header  string  true  "Device ID"  example(dev-123)
//
// @Success     200  {object}  domain.PreferenceProfile
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No profile saved"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /preferences [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	p, err := h.prefSvc.Get(c.Request.Context(), deviceID(c))
	switch {
	case err == nil:
		ok(c, http.StatusOK, p)
	case errors.Is(err, services.ErrInvalidDevice):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "device id is required")
	case errors.Is(err, services.ErrNoPreferences):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no preferences saved for this device")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
