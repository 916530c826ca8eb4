// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, external provider
// credentials, API quota budgets, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "menuscan-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ProviderConfig holds credentials and tuning for the external collaborators:
// the vision/text LLM, the OCR fallback, and the image search API. Empty keys
// disable the corresponding provider; the affected components degrade instead
// of failing (the recommendation engine is the one exception and surfaces a
// typed error when its collaborator is missing).
type ProviderConfig struct {
	OpenAIKey      string        // OPENAI_API_KEY
	TextModel      string        // OPENAI_TEXT_MODEL
	VisionModel    string        // OPENAI_VISION_MODEL
	OCRKey         string        // OCR_API_KEY (Google Vision)
	ImageKey       string        // IMAGE_SEARCH_API_KEY (Google Custom Search)
	ImageCX        string        // IMAGE_SEARCH_CX (Custom Search engine id)
	Timeout        time.Duration // per-call HTTP timeout for all providers
	TargetLanguage string        // language dish names are translated into
}

// QuotaConfig is the per-API budget for the external-API quota limiter.
type QuotaConfig struct {
	PerMinute int
	PerDay    int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath            string        // SQLite path
	MaxUploadBytes    int64         // multipart image size cap
	CacheTTL          time.Duration // dish cache entry lifetime
	EnrichConcurrency int           // parallel per-dish enrichment fan-out
	BatchSize         int           // chunk size for batch image lookups
	BatchDelay        time.Duration // courtesy pause between batches
	AnalyzeTimeout    time.Duration // overall budget for one /analyze request

	// External providers
	Providers ProviderConfig

	// Per-API quota budgets (external spend protection)
	VisionQuota QuotaConfig // QUOTA_VISION_PER_MINUTE / QUOTA_VISION_PER_DAY
	OCRQuota    QuotaConfig
	ImageQuota  QuotaConfig
	TextQuota   QuotaConfig

	// Edge rate limiting (per device/IP token bucket)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:            getenv("DB_PATH", "menuscan.db"),
		MaxUploadBytes:    int64(getint("MAX_UPLOAD_BYTES", 8<<20)),
		CacheTTL:          getdur("CACHE_TTL", 90*24*time.Hour),
		EnrichConcurrency: getint("ENRICH_CONCURRENCY", 8),
		BatchSize:         getint("BATCH_SIZE", 5),
		BatchDelay:        getdur("BATCH_DELAY", 300*time.Millisecond),
		AnalyzeTimeout:    getdur("ANALYZE_TIMEOUT", 60*time.Second),

		// External providers
		Providers: ProviderConfig{
			OpenAIKey:      getenv("OPENAI_API_KEY", ""),
			TextModel:      getenv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
			VisionModel:    getenv("OPENAI_VISION_MODEL", "gpt-4o"),
			OCRKey:         getenv("OCR_API_KEY", ""),
			ImageKey:       getenv("IMAGE_SEARCH_API_KEY", ""),
			ImageCX:        getenv("IMAGE_SEARCH_CX", ""),
			Timeout:        getdur("PROVIDER_TIMEOUT", 25*time.Second),
			TargetLanguage: getenv("TARGET_LANGUAGE", "English"),
		},

		// Quota budgets
		VisionQuota: QuotaConfig{
			PerMinute: getint("QUOTA_VISION_PER_MINUTE", 20),
			PerDay:    getint("QUOTA_VISION_PER_DAY", 500),
		},
		OCRQuota: QuotaConfig{
			PerMinute: getint("QUOTA_OCR_PER_MINUTE", 100),
			PerDay:    getint("QUOTA_OCR_PER_DAY", 5000),
		},
		ImageQuota: QuotaConfig{
			PerMinute: getint("QUOTA_IMAGE_PER_MINUTE", 60),
			PerDay:    getint("QUOTA_IMAGE_PER_DAY", 1000),
		},
		TextQuota: QuotaConfig{
			PerMinute: getint("QUOTA_TEXT_PER_MINUTE", 60),
			PerDay:    getint("QUOTA_TEXT_PER_DAY", 2000),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "menuscan-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.EnrichConcurrency < 1 {
		return cfg, errors.New("ENRICH_CONCURRENCY must be >= 1")
	}
	if cfg.BatchSize < 1 {
		return cfg, errors.New("BATCH_SIZE must be >= 1")
	}
	if cfg.AnalyzeTimeout <= 0 {
		return cfg, errors.New("ANALYZE_TIMEOUT must be > 0")
	}
	if cfg.Providers.Timeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	for _, q := range []QuotaConfig{cfg.VisionQuota, cfg.OCRQuota, cfg.ImageQuota, cfg.TextQuota} {
		if q.PerMinute < 1 || q.PerDay < 1 {
			return cfg, errors.New("quota budgets must be >= 1")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
