package config

import (
	"reflect"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// App
	t.Setenv("DB_PATH", "menus.sqlite")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("CACHE_TTL", "720h")
	t.Setenv("ENRICH_CONCURRENCY", "4")
	t.Setenv("BATCH_SIZE", "3")
	t.Setenv("BATCH_DELAY", "150ms")
	t.Setenv("ANALYZE_TIMEOUT", "45s")

	// Providers
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_TEXT_MODEL", "gpt-x")
	t.Setenv("PROVIDER_TIMEOUT", "10s")
	t.Setenv("TARGET_LANGUAGE", "German")

	// Quota budgets
	t.Setenv("QUOTA_VISION_PER_MINUTE", "7")
	t.Setenv("QUOTA_VISION_PER_DAY", "70")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	// App
	if cfg.DBPath != "menus.sqlite" ||
		cfg.MaxUploadBytes != 1<<20 ||
		cfg.CacheTTL != 720*time.Hour ||
		cfg.EnrichConcurrency != 4 ||
		cfg.BatchSize != 3 ||
		cfg.BatchDelay != 150*time.Millisecond ||
		cfg.AnalyzeTimeout != 45*time.Second {
		t.Fatalf("app fields unexpected: %+v", cfg)
	}

	// Providers
	if cfg.Providers.OpenAIKey != "sk-test" ||
		cfg.Providers.TextModel != "gpt-x" ||
		cfg.Providers.Timeout != 10*time.Second ||
		cfg.Providers.TargetLanguage != "German" {
		t.Fatalf("provider fields unexpected: %+v", cfg.Providers)
	}

	// Quotas: overridden vision, defaulted text
	if cfg.VisionQuota.PerMinute != 7 || cfg.VisionQuota.PerDay != 70 {
		t.Fatalf("vision quota unexpected: %+v", cfg.VisionQuota)
	}
	if cfg.TextQuota.PerMinute != 60 || cfg.TextQuota.PerDay != 2000 {
		t.Fatalf("text quota defaults unexpected: %+v", cfg.TextQuota)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure ||
		cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- validation failures ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad read timeout", "READ_TIMEOUT", "-1s"},
		{"zero upload cap", "MAX_UPLOAD_BYTES", "0"},
		{"zero cache ttl", "CACHE_TTL", "-1h"},
		{"zero concurrency", "ENRICH_CONCURRENCY", "0"},
		{"zero quota", "QUOTA_OCR_PER_DAY", "0"},
		{"zero burst", "RATE_BURST", "0"},
		{"bad sampler", "OTEL_TRACES_SAMPLER_ARG", "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.value)
			}
		})
	}
}
