// Package services – VisionService
//
// This file implements the VisionService, which turns a menu photo into dish
// candidates. The primary path is the multimodal vision collaborator; when it
// is unavailable, denied by quota, or fails, the service falls back to plain
// OCR and a line heuristic that keeps plausible dish names.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/tbourn/menuscan-backend/internal/domain"
	"github.com/tbourn/menuscan-backend/internal/menu"
	"github.com/tbourn/menuscan-backend/internal/providers"
	"github.com/tbourn/menuscan-backend/internal/quota"
)

// maxDishLineChars bounds how long an OCR line may be and still pass as a
// dish name.
const maxDishLineChars = 50

// VisionService extracts dish candidates from a menu photo.
type VisionService struct {
	// Primary is the multimodal extractor; nil skips straight to fallback.
	Primary providers.VisionProvider
	// Fallback is the OCR collaborator used when the primary path fails.
	Fallback providers.OCRProvider
	// Limiter gates both paths against the shared quota budgets.
	Limiter *quota.Limiter

	Log zerolog.Logger
}

// NewVisionService constructs a VisionService.
func NewVisionService(primary providers.VisionProvider, fallback providers.OCRProvider, limiter *quota.Limiter, log zerolog.Logger) *VisionService {
	return &VisionService{Primary: primary, Fallback: fallback, Limiter: limiter, Log: log}
}

// Extract validates the image bytes and returns the extracted dish
// candidates. Unsupported encodings return ErrUnsupportedImage before any
// provider is consulted.
func (s *VisionService) Extract(ctx context.Context, image []byte) (*providers.MenuExtraction, error) {
	ctx, span := otel.Tracer("services/vision").Start(ctx, "VisionService.Extract")
	defer span.End()

	mime, ok := providers.SniffImageMIME(image)
	if !ok {
		return nil, ErrUnsupportedImage
	}

	if s.Primary != nil {
		if s.Limiter == nil || s.Limiter.Allow(ctx, quota.APIVision) {
			ext, err := s.Primary.ExtractMenu(ctx, image, mime)
			if err == nil {
				return ext, nil
			}
			s.Log.Warn().Err(err).Msg("vision extraction failed, trying ocr fallback")
		} else {
			s.Log.Warn().Msg("vision quota exhausted, trying ocr fallback")
		}
	}

	if s.Fallback == nil {
		return &providers.MenuExtraction{IsMenu: false}, nil
	}
	if s.Limiter != nil && !s.Limiter.Allow(ctx, quota.APIOCR) {
		return &providers.MenuExtraction{IsMenu: false}, nil
	}

	lines, err := s.Fallback.DetectLines(ctx, image)
	if err != nil {
		s.Log.Warn().Err(err).Msg("ocr fallback failed")
		return &providers.MenuExtraction{IsMenu: false}, nil
	}

	dishes := candidatesFromLines(lines)
	return &providers.MenuExtraction{
		IsMenu: len(dishes) > 0,
		Dishes: dishes,
	}, nil
}

// candidatesFromLines keeps OCR lines that look like dish names: two to ten
// words, at most maxDishLineChars characters, and a non-empty normalized
// form. Duplicate names (after normalization) are dropped.
func candidatesFromLines(lines []string) []domain.ExtractedDish {
	seen := make(map[string]struct{}, len(lines))
	var out []domain.ExtractedDish
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > maxDishLineChars {
			continue
		}
		if n := len(strings.Fields(line)); n < 2 || n > 10 {
			continue
		}
		key := menu.Normalize(line)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.ExtractedDish{Name: line})
	}
	return out
}
