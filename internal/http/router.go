// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/menuscan-backend/internal/config"
	"github.com/tbourn/menuscan-backend/internal/http/handlers"
	"github.com/tbourn/menuscan-backend/internal/http/middleware"
	"github.com/tbourn/menuscan-backend/internal/providers"
	"github.com/tbourn/menuscan-backend/internal/quota"
	"github.com/tbourn/menuscan-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per device/IP; health and metrics bypass)
//  8. CORS and Security headers
//  9. Gzip response compression
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (device ids are masked by default)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit; headroom over the photo cap for the
	// multipart framing.
	r.Use(limitBody(cfg.MaxUploadBytes + (256 << 10)))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", middleware.MarkRateBypass(), gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per device/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByDeviceOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Device-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Device-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// 9) Compress JSON responses; dish lists with long URLs shrink well.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", middleware.MarkRateBypass(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger UI (explicitly opt-in; not for production by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: providers ← cfg, services ← providers/db/quota
	h := handlers.New(buildServices(db, cfg))
	h.MaxUploadBytes = cfg.MaxUploadBytes
	h.AnalyzeTimeout = cfg.AnalyzeTimeout

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Preferences
		api.POST("/preferences", h.SavePreferences)
		api.GET("/preferences", h.GetPreferences)

		// Menu analysis
		api.POST("/analyze", h.AnalyzeMenu)
		api.POST("/dish/detail", h.DishDetail)

		// Recommendations and quota usage
		api.POST("/recommendations", h.Recommend)
		api.GET("/usage", h.UsageSnapshot)
	}
}

// buildServices constructs the full service graph from configuration. Missing
// provider credentials leave the corresponding collaborator nil; services
// degrade rather than fail.
func buildServices(db *gorm.DB, cfg config.Config) (handlers.PreferenceService, handlers.MenuAnalyzer, handlers.Recommender, handlers.UsageReporter) {
	logger := log.Logger

	limiter := quota.NewLimiter(
		&quota.GormCounterStore{DB: db},
		map[string]quota.Budget{
			quota.APIVision:      {PerMinute: int64(cfg.VisionQuota.PerMinute), PerDay: int64(cfg.VisionQuota.PerDay)},
			quota.APIOCR:         {PerMinute: int64(cfg.OCRQuota.PerMinute), PerDay: int64(cfg.OCRQuota.PerDay)},
			quota.APIImageSearch: {PerMinute: int64(cfg.ImageQuota.PerMinute), PerDay: int64(cfg.ImageQuota.PerDay)},
			quota.APITextGen:     {PerMinute: int64(cfg.TextQuota.PerMinute), PerDay: int64(cfg.TextQuota.PerDay)},
		},
		logger,
	)

	var (
		vision providers.VisionProvider
		gen    providers.TextGenerator
		ocr    providers.OCRProvider
		search providers.ImageSearchProvider
	)
	if cfg.Providers.OpenAIKey != "" {
		oc := providers.NewOpenAIClient(
			cfg.Providers.OpenAIKey,
			cfg.Providers.TextModel,
			cfg.Providers.VisionModel,
			cfg.Providers.TargetLanguage,
			cfg.Providers.Timeout,
			logger,
		)
		vision, gen = oc, oc
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; vision extraction and text generation disabled")
	}
	if cfg.Providers.OCRKey != "" {
		ocr = providers.NewGoogleOCRClient(cfg.Providers.OCRKey, cfg.Providers.Timeout, logger)
	}
	if cfg.Providers.ImageKey != "" && cfg.Providers.ImageCX != "" {
		search = providers.NewGoogleImageSearchClient(cfg.Providers.ImageKey, cfg.Providers.ImageCX, cfg.Providers.Timeout, logger)
	}

	imgSvc := services.NewImageService(db, search, limiter, cfg.CacheTTL, logger)
	imgSvc.BatchSize = cfg.BatchSize
	imgSvc.BatchDelay = cfg.BatchDelay
	descSvc := services.NewDescriptionService(db, gen, limiter, cfg.CacheTTL, logger)
	visSvc := services.NewVisionService(vision, ocr, limiter, logger)

	menuSvc := services.NewMenuService(visSvc, imgSvc, descSvc, logger)
	menuSvc.Concurrency = cfg.EnrichConcurrency

	prefSvc := services.NewPreferenceService(db)
	recSvc := services.NewRecommendationService(gen, limiter, imgSvc, logger)

	return prefSvc, menuSvc, recSvc, limiter
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
