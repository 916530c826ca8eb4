// Recommendation HTTP handlers.
//
// This file exposes:
//   - POST /recommendations   (rank dishes against the device's saved profile)
//   - GET  /usage             (external API quota snapshot)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/menuscan-backend/internal/domain"
	"github.com/tbourn/menuscan-backend/internal/quota"
	"github.com/tbourn/menuscan-backend/internal/services"
)

// RecommendRequest carries the candidate dishes to rank, typically the output
// of a previous /analyze call.
type RecommendRequest struct {
	Dishes []domain.Dish `json:"dishes" binding:"required"`
}

// RecommendResponse wraps the ranked suggestions. An empty list means no dish
// matched the profile; that is a valid outcome, not an error.
type RecommendResponse struct {
	Recommendations []domain.Recommendation `json:"recommendations"`
	Message         string                  `json:"message"`
}

// UsageResponse wraps the per-API quota usage snapshot.
type UsageResponse struct {
	APIs []quota.APIUsage `json:"apis"`
}

// Recommend godoc
// @ID          recommend
// @Summary     Recommend dishes
// @Description Ranks the supplied dishes against the device's saved taste profile.
// @Tags        Recommendations
// @Accept      json
// @Produce     json
//
// @Param       X-Device-ID  header  string  true  "Device ID"  example(dev-123)
// @Param       body         body    handlers.RecommendRequest  true  "Candidate dishes"
//
// @Success     200  {object}  handlers.RecommendResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or no preferences saved"
// @Failure     429  {object}  handlers.ErrorResponse  "Quota exhausted"
// @Failure     503  {object}  handlers.ErrorResponse  "Recommender unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Recommendation failed"
// @Router      /recommendations [post]
func (h *Handlers) Recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()

	prefs, err := h.prefSvc.Get(ctx, deviceID(c))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidDevice):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "device id is required")
		return
	case errors.Is(err, services.ErrNoPreferences):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "save preferences before asking for recommendations")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	recs, err := h.recSvc.Recommend(ctx, req.Dishes, prefs)
	switch {
	case err == nil:
		msg := "Here are your top picks."
		if len(recs) == 0 {
			msg = "No dish on this menu matched your preferences. Try another menu."
		}
		ok(c, http.StatusOK, RecommendResponse{Recommendations: recs, Message: msg})
	case errors.Is(err, services.ErrNoDishes):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one dish is required")
	case errors.Is(err, services.ErrRateLimited):
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "recommendation quota exhausted, try again shortly")
	case errors.Is(err, services.ErrRecommenderUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeRecommendFailed, "recommendations are not available right now")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeRecommendFailed, err.Error())
	}
}

// UsageSnapshot godoc
// @ID          usageSnapshot
// @Summary     External API usage
// @Description Returns current minute-window and daily usage per external API.
// @Tags        Usage
// @Produce     json
//
// @Success     200  {object}  handlers.UsageResponse
// @Router      /usage [get]
func (h *Handlers) UsageSnapshot(c *gin.Context) {
	ok(c, http.StatusOK, UsageResponse{APIs: h.usage.Usage(c.Request.Context())})
}
