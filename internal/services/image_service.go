// Package services – ImageService
//
// This file implements the ImageService, the cache-backed resolver that turns
// a dish name into representative photo URLs. Lookups go through the
// persistent dish cache first; only on a miss does the service consult the
// image-search collaborator, gated by the shared quota limiter.
//
// Resolve never fails: provider errors, quota denials, and cache problems all
// degrade to an empty resolution so menu analysis keeps going without images.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/menuscan-backend/internal/menu"
	"github.com/tbourn/menuscan-backend/internal/providers"
	"github.com/tbourn/menuscan-backend/internal/quota"
	"github.com/tbourn/menuscan-backend/internal/repo"
)

var dishCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dish_cache_lookups_total",
		Help: "Dish cache lookups partitioned by outcome.",
	},
	[]string{"result"}, // hit | miss
)

func init() {
	prometheus.MustRegister(dishCacheLookups)
}

// imagesPerDish is how many candidate URLs are requested from the search
// collaborator on a cache miss.
const imagesPerDish = 3

// ImageResolution is the outcome of resolving one dish name. The zero value
// means "no image available".
type ImageResolution struct {
	ImageURL     string
	ThumbnailURL string
	AllImageURLs []string

	// QuotaExceeded is set when the lookup was skipped or rejected because
	// the image-search budget is exhausted, so callers can surface the
	// condition distinctly from an ordinary miss.
	QuotaExceeded bool
}

// ImageService resolves dish names to photo URLs via the persistent cache and
// the image-search collaborator.
type ImageService struct {
	// DB is the GORM handle backing the dish cache.
	DB *gorm.DB
	// Search is the image-search collaborator; nil disables live lookups.
	Search providers.ImageSearchProvider
	// Limiter gates live lookups against the shared quota budgets.
	Limiter *quota.Limiter

	// CacheTTL is how long a resolved entry stays fresh.
	CacheTTL time.Duration
	// BatchSize and BatchDelay pace ResolveBatch to stay polite toward the
	// provider on multi-dish lookups.
	BatchSize  int
	BatchDelay time.Duration

	Log zerolog.Logger

	now func() time.Time
}

// NewImageService constructs an ImageService with the given collaborators.
func NewImageService(db *gorm.DB, search providers.ImageSearchProvider, limiter *quota.Limiter, ttl time.Duration, log zerolog.Logger) *ImageService {
	return &ImageService{
		DB:         db,
		Search:     search,
		Limiter:    limiter,
		CacheTTL:   ttl,
		BatchSize:  5,
		BatchDelay: 300 * time.Millisecond,
		Log:        log,
		now:        time.Now,
	}
}

// Resolve returns image URLs for the dish name, consulting the cache first
// and falling back to a quota-gated provider search. It never returns an
// error; all failure modes degrade to an empty resolution.
func (s *ImageService) Resolve(ctx context.Context, dishName string) ImageResolution {
	ctx, span := otel.Tracer("services/image").Start(ctx, "ImageService.Resolve")
	defer span.End()

	key := menu.Normalize(dishName)
	if key == "" {
		return ImageResolution{}
	}
	now := s.now().UTC()

	if e, err := repo.GetDishCache(ctx, s.DB, key, now); err == nil && e.HasImage() {
		dishCacheLookups.WithLabelValues("hit").Inc()
		return resolutionFromURLs(e.ImageURLs)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.Log.Warn().Err(err).Str("dish", key).Msg("dish cache read failed")
	}
	dishCacheLookups.WithLabelValues("miss").Inc()

	if s.Search == nil {
		return ImageResolution{}
	}
	if s.Limiter != nil && !s.Limiter.Allow(ctx, quota.APIImageSearch) {
		return ImageResolution{QuotaExceeded: true}
	}

	results, err := s.Search.SearchImages(ctx, dishName+" food dish photo", imagesPerDish)
	if err != nil {
		if errors.Is(err, providers.ErrDailyQuotaExceeded) {
			s.Log.Warn().Str("dish", key).Msg("image search daily quota exceeded")
			return ImageResolution{QuotaExceeded: true}
		}
		s.Log.Warn().Err(err).Str("dish", key).Msg("image search failed")
		return ImageResolution{}
	}
	if len(results) == 0 {
		return ImageResolution{}
	}

	// Keep the provider thumbnail as the second candidate so cached entries
	// can serve both sizes without a second lookup.
	urls := make([]string, 0, len(results)+1)
	urls = append(urls, results[0].Link)
	if t := results[0].Thumbnail; t != "" {
		urls = append(urls, t)
	}
	for _, r := range results[1:] {
		urls = append(urls, r.Link)
	}

	if err := repo.UpsertDishImages(ctx, s.DB, key, menu.DisplayName(key), urls, "", now.Add(s.CacheTTL)); err != nil {
		s.Log.Warn().Err(err).Str("dish", key).Msg("dish cache write failed")
	}
	return resolutionFromURLs(urls)
}

// ResolveBatch resolves many dish names concurrently within each batch,
// pausing BatchDelay between batches. The result slice is positional.
func (s *ImageService) ResolveBatch(ctx context.Context, dishNames []string) []ImageResolution {
	out := make([]ImageResolution, len(dishNames))
	size := s.BatchSize
	if size <= 0 {
		size = 5
	}
	for start := 0; start < len(dishNames); start += size {
		if ctx.Err() != nil {
			break
		}
		end := start + size
		if end > len(dishNames) {
			end = len(dishNames)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i] = s.Resolve(ctx, dishNames[i])
			}(i)
		}
		wg.Wait()
		if end < len(dishNames) && s.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.BatchDelay):
			}
		}
	}
	return out
}

func resolutionFromURLs(urls []string) ImageResolution {
	r := ImageResolution{AllImageURLs: urls}
	if len(urls) > 0 {
		r.ImageURL = urls[0]
		r.ThumbnailURL = urls[0]
	}
	if len(urls) > 1 {
		r.ThumbnailURL = urls[1]
	}
	return r
}
