// Package services – MenuService
//
// This file implements the MenuService, the /analyze orchestrator: it runs
// vision extraction on the uploaded photo and then enriches every extracted
// dish with images and a short description, fanning out with bounded
// concurrency and reassembling results in menu order.
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

// AnalyzeResult is the outcome of analyzing one menu photo.
type AnalyzeResult struct {
	// IsMenu reports whether the photo was judged to show a menu at all.
	IsMenu bool `json:"is_menu"`
	// Dishes are the enriched dishes in the order they appear on the menu.
	Dishes []domain.Dish `json:"dishes"`
	// ImageQuotaExceeded is set when at least one image lookup was denied for
	// quota reasons, so clients can explain the missing photos.
	ImageQuotaExceeded bool `json:"image_quota_exceeded,omitempty"`
	// Message is a short human-readable summary suitable for direct display.
	Message string `json:"message"`
}

// MenuService orchestrates extraction and enrichment of menu photos.
type MenuService struct {
	Vision       *VisionService
	Images       *ImageService
	Descriptions *DescriptionService

	// Concurrency bounds the enrichment fan-out per request.
	Concurrency int
	// MaxDishes truncates pathological extractions; 0 means no cap.
	MaxDishes int

	Log zerolog.Logger
}

// NewMenuService constructs a MenuService with a fan-out of eight.
func NewMenuService(vision *VisionService, images *ImageService, descriptions *DescriptionService, log zerolog.Logger) *MenuService {
	return &MenuService{
		Vision:       vision,
		Images:       images,
		Descriptions: descriptions,
		Concurrency:  8,
		Log:          log,
	}
}

// Analyze extracts dishes from the photo and enriches each one. The returned
// dish slice is positional: index i corresponds to the i-th extracted dish
// regardless of which enrichment finished first.
func (s *MenuService) Analyze(ctx context.Context, image []byte) (*AnalyzeResult, error) {
	ctx, span := otel.Tracer("services/menu").Start(ctx, "MenuService.Analyze")
	defer span.End()

	ext, err := s.Vision.Extract(ctx, image)
	if err != nil {
		return nil, err
	}
	if !ext.IsMenu {
		return &AnalyzeResult{
			IsMenu:  false,
			Dishes:  []domain.Dish{},
			Message: "That photo does not look like a menu. Try a clearer shot of the menu page.",
		}, nil
	}

	extracted := ext.Dishes
	if s.MaxDishes > 0 && len(extracted) > s.MaxDishes {
		s.Log.Warn().Int("extracted", len(extracted)).Int("cap", s.MaxDishes).Msg("truncating extracted dishes")
		extracted = extracted[:s.MaxDishes]
	}

	res := &AnalyzeResult{IsMenu: true, Dishes: make([]domain.Dish, len(extracted))}
	if len(extracted) == 0 {
		return res, nil
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = 8
	}
	sem := make(chan struct{}, limit)
	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		quotaExceeded bool
	)
	for i, d := range extracted {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d domain.ExtractedDish) {
			defer wg.Done()
			defer func() { <-sem }()

			dish := domain.Dish{Name: d.Name, Description: d.Description}

			img := s.Images.Resolve(ctx, d.Name)
			dish.ImageURL = img.ImageURL
			dish.ThumbnailURL = img.ThumbnailURL
			dish.AllImageURLs = img.AllImageURLs
			if img.QuotaExceeded {
				mu.Lock()
				quotaExceeded = true
				mu.Unlock()
			}

			// The menu's own printed description wins; generate one only when
			// the menu had none.
			if dish.Description == "" {
				dish.Description = s.Descriptions.Short(ctx, d.Name)
			}

			res.Dishes[i] = dish
		}(i, d)
	}
	wg.Wait()

	res.ImageQuotaExceeded = quotaExceeded
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case len(res.Dishes) == 0:
		res.Message = "No dishes could be read from this menu. Try a closer photo."
	case quotaExceeded:
		res.Message = fmt.Sprintf("Found %d dishes. Some photos are unavailable right now.", len(res.Dishes))
	default:
		res.Message = fmt.Sprintf("Found %d dishes on the menu.", len(res.Dishes))
	}
	return res, nil
}

// DishDetail returns an on-demand detailed description for one dish, grounded
// in the menu's printed description when available.
func (s *MenuService) DishDetail(ctx context.Context, dishName, menuDescription string) string {
	ctx, span := otel.Tracer("services/menu").Start(ctx, "MenuService.DishDetail")
	defer span.End()
	return s.Descriptions.Detailed(ctx, dishName, menuDescription)
}
