// Package providers defines the narrow contracts for the four external
// collaborators this system consumes — multimodal menu understanding, OCR
// fallback, web image search, and short text generation — together with
// concrete HTTP clients for each. Components depend on the interfaces only,
// so tests substitute stubs and the composition root owns construction; no
// lazily-initialized globals.
package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tbourn/menuscan-backend/internal/domain"
)

// ErrUnsupportedImage marks an image encoding the pipeline cannot accept.
// Unlike other provider failures, this one is surfaced to the user verbatim.
var ErrUnsupportedImage = errors.New("unsupported image format: please upload PNG, JPEG, GIF, or WebP")

// ErrDailyQuotaExceeded signals that the vendor rejected the call for quota
// reasons (as opposed to our own limiter denying it before the call).
var ErrDailyQuotaExceeded = errors.New("provider daily quota exceeded")

// MenuExtraction is the structured result of reading a menu photo.
type MenuExtraction struct {
	// IsMenu is the provider's judgment of whether the image is a menu at
	// all. False is a valid, successful outcome.
	IsMenu bool
	// Dishes are the extracted candidates, in menu order.
	Dishes []domain.ExtractedDish
}

// VisionProvider understands menu photographs. Implementations must translate
// dish names to the configured target language, merge category labels into
// generic item names, skip structural section headers, and capture printed
// descriptions when visible.
type VisionProvider interface {
	ExtractMenu(ctx context.Context, image []byte, mime string) (*MenuExtraction, error)
}

// OCRProvider is the low-precision fallback: plain text detection returning
// raw lines, no menu semantics.
type OCRProvider interface {
	DetectLines(ctx context.Context, image []byte) ([]string, error)
}

// ImageResult is one ranked candidate from an image search.
type ImageResult struct {
	Link      string
	Thumbnail string
}

// ImageSearchProvider performs a safe, photo-biased web image search.
type ImageSearchProvider interface {
	SearchImages(ctx context.Context, query string, limit int) ([]ImageResult, error)
}

// TextGenerator produces a short completion for a prompt. Used for dish
// descriptions and for recommendation ranking.
type TextGenerator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// supportedMIMEs are the image encodings the pipeline accepts.
var supportedMIMEs = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// SniffImageMIME detects the content type of raw image bytes and reports
// whether the pipeline supports it. Detection uses the standard signature
// sniffer, so client-supplied headers are never trusted.
func SniffImageMIME(image []byte) (string, bool) {
	mime := http.DetectContentType(image)
	_, ok := supportedMIMEs[mime]
	return mime, ok
}
