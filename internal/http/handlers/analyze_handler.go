// Menu analysis HTTP handlers.
//
// This file exposes the analysis endpoints:
//   - POST /analyze       (multipart menu photo upload)
//   - POST /dish/detail   (on-demand detailed description)
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/menuscan-backend/internal/services"
	"github.com/tbourn/menuscan-backend/internal/utils"
)

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before a response could be written.
const statusClientClosedRequest = 499

// DishDetailRequest asks for a detailed description of one dish, optionally
// grounded in the menu's own printed description.
type DishDetailRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255" example:"Green Curry"`
	Description string `json:"description" example:"medium spicy, with jasmine rice"`
}

// DishDetailResponse carries the generated detailed description.
type DishDetailResponse struct {
	Name                string `json:"name"`
	DetailedDescription string `json:"detailed_description"`
}

// AnalyzeMenu godoc
// @ID          analyzeMenu
// @Summary     Analyze a menu photo
// @Description Extracts the dishes from an uploaded menu photo and enriches each with an image and a short description.
// @Tags        Analyze
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-Device-ID  header  string  false "Device ID"  example(dev-123)
// @Param       max_dishes   query   int     false "Cap the number of returned dishes"  minimum(1)
// @Param       image        formData  file  true  "Menu photo (PNG, JPEG, GIF, or WebP)"
//
// @Success     200  {object}  services.AnalyzeResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or unsupported image"
// @Failure     413  {object}  handlers.ErrorResponse  "Photo too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Analysis failed"
// @Failure     504  {object}  handlers.ErrorResponse  "Analysis timed out"
// @Router      /analyze [post]
func (h *Handlers) AnalyzeMenu(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `multipart field "image" is required`)
		return
	}
	if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "menu photo exceeds the size limit")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read uploaded file")
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read uploaded file")
		return
	}

	ctx := c.Request.Context()
	if h.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.AnalyzeTimeout)
		defer cancel()
	}

	res, err := h.menuSvc.Analyze(ctx, image)
	switch {
	case err == nil:
		if maxDishes := utils.AtoiDefault(c.Query("max_dishes"), 0); maxDishes > 0 && len(res.Dishes) > maxDishes {
			res.Dishes = res.Dishes[:maxDishes]
		}
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrUnsupportedImage):
		fail(c, http.StatusBadRequest, ErrCodeUnsupported, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "menu analysis timed out, try a smaller photo")
	case errors.Is(err, context.Canceled):
		// The client went away mid-analysis; nothing useful can be delivered
		// and it is not a server fault.
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeAnalyzeFailed, err.Error())
	}
}

// DishDetail godoc
// @ID          dishDetail
// @Summary     Detailed dish description
// @Description Generates a richer description for one dish on demand.
// @Tags        Analyze
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.DishDetailRequest  true  "Dish to describe"
//
// @Success     200  {object}  handlers.DishDetailResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /dish/detail [post]
func (h *Handlers) DishDetail(c *gin.Context) {
	var req DishDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "dish name is required")
		return
	}

	detail := h.menuSvc.DishDetail(c.Request.Context(), name, req.Description)
	ok(c, http.StatusOK, DishDetailResponse{Name: name, DetailedDescription: detail})
}
